package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextExtractor pulls plain text from every page using github.com/ledongthuc/pdf.
type TextExtractor struct{}

// Extract returns the concatenated page text. A page that cannot be read
// contributes an empty string; a document with no text at all is an error.
func (TextExtractor) Extract(ctx context.Context, data []byte) (Content, error) {
	if err := checkInput(ctx, ModeText, data); err != nil {
		return Content{}, err
	}

	text, pages, err := extractPDF(data)
	if err != nil {
		return Content{}, &ExtractionError{Mode: ModeText, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return Content{}, &ExtractionError{Mode: ModeText, Err: ErrNoText}
	}
	return Content{Text: text, Pages: pages}, nil
}

// PageCount opens the document and reports its number of pages.
func PageCount(data []byte) (int, error) {
	_, pages, err := openPDF(data)
	return pages, err
}

func extractPDF(data []byte) (string, int, error) {
	r, pages, err := openPDF(data)
	if err != nil {
		return "", 0, err
	}

	fonts := make(map[string]*pdf.Font)
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		parts = append(parts, pageText(r, i, fonts))
	}
	return strings.Join(parts, "\n"), pages, nil
}

// openPDF guards the reader, which panics on some malformed inputs.
func openPDF(data []byte) (r *pdf.Reader, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, pages, err = nil, 0, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, err
	}
	pages = r.NumPage()
	if pages <= 0 {
		return nil, 0, ErrNoPages
	}
	return r, pages, nil
}

func pageText(r *pdf.Reader, num int, fonts map[string]*pdf.Font) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()

	p := r.Page(num)
	if p.V.IsNull() {
		return ""
	}
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := p.Font(name)
			fonts[name] = &f
		}
	}
	text, err := p.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
