package analyses

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMode        = errors.New("analysis mode is invalid")
	ErrInvalidExtractMode = errors.New("extract mode is invalid")
)

const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeExtraction = "extraction_error"
	ErrorCodeProvider   = "provider_error"
	ErrorCodeInternal   = "internal_error"
)

// ParseNotice is shown next to the raw reply when it is not the requested JSON.
const ParseNotice = "could not parse model reply as JSON"

// MissingInputError is a user-correctable request problem detected before any provider call.
type MissingInputError struct {
	Field string
	Err   error
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *MissingInputError) Unwrap() error {
	return e.Err
}

// ParseError reports a match-mode reply that is not the expected JSON object.
// It never fails an analysis.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
