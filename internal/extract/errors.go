package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput means no resume was uploaded.
	ErrMissingInput = errors.New("no file uploaded")
	ErrNotPDF       = errors.New("upload is not a PDF document")
	ErrNoPages      = errors.New("pdf has no pages")
	ErrNoText       = errors.New("pdf contains no extractable text")
)

// ExtractionError reports a PDF that could not be turned into model input.
type ExtractionError struct {
	Mode Mode
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract resume mode=%s: %v", e.Mode, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
