package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

// Mode selects how a resume is turned into model input.
type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

const mimeJPEG = "image/jpeg"

// Image is a base64-encoded picture of a resume page.
type Image struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is the extracted resume: either plain text or a single page image.
type Content struct {
	Text  string `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
	// Pages is the page count of the source document, 0 when unknown.
	Pages int `json:"pages,omitempty"`
}

// IsImage reports whether the content carries an image instead of text.
func (c Content) IsImage() bool {
	return c.Image != nil
}

// Extractor converts uploaded PDF bytes into Content.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (Content, error)
}

// Options configures New.
type Options struct {
	Rasterizer  Rasterizer
	JPEGQuality int
}

// ParseMode normalizes a mode string. Empty input selects text mode.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text", "pdf_text":
		return ModeText, nil
	case "image", "jpeg", "vision":
		return ModeImage, nil
	default:
		return "", fmt.Errorf("unsupported extract mode: %q", raw)
	}
}

// New returns the extractor for the given mode.
func New(mode Mode, opts Options) (Extractor, error) {
	switch mode {
	case ModeText:
		return TextExtractor{}, nil
	case ModeImage:
		r := opts.Rasterizer
		if r == nil {
			r = Pdftoppm{}
		}
		return ImageExtractor{Rasterizer: r, Quality: opts.JPEGQuality}, nil
	default:
		return nil, fmt.Errorf("unsupported extract mode: %q", mode)
	}
}

// checkInput rejects absent uploads and bytes that are not a PDF.
func checkInput(ctx context.Context, mode Mode, data []byte) error {
	if len(data) == 0 {
		return ErrMissingInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), []byte("%PDF-")) {
		return &ExtractionError{Mode: mode, Err: ErrNotPDF}
	}
	return nil
}
