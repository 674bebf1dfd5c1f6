package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultJPEGQuality = 90
	defaultDPI         = 150
)

// Rasterizer renders the first page of a PDF to a bitmap.
type Rasterizer interface {
	FirstPage(ctx context.Context, data []byte) (image.Image, error)
}

// ImageExtractor renders only the first page, re-encodes it as JPEG and
// base64-encodes it. Later pages are dropped.
type ImageExtractor struct {
	Rasterizer Rasterizer
	Quality    int
}

// Extract returns Content with Image set.
func (e ImageExtractor) Extract(ctx context.Context, data []byte) (Content, error) {
	if err := checkInput(ctx, ModeImage, data); err != nil {
		return Content{}, err
	}
	if e.Rasterizer == nil {
		return Content{}, &ExtractionError{Mode: ModeImage, Err: errors.New("no rasterizer configured")}
	}

	img, err := e.Rasterizer.FirstPage(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Content{}, ctxErr
		}
		return Content{}, &ExtractionError{Mode: ModeImage, Err: err}
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Content{}, &ExtractionError{Mode: ModeImage, Err: fmt.Errorf("encode jpeg: %w", err)}
	}

	// Page count is informational; scanned PDFs the text reader rejects still rasterize.
	pages, _ := PageCount(data)

	return Content{
		Image: &Image{
			MIMEType: mimeJPEG,
			Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		},
		Pages: pages,
	}, nil
}

// Pdftoppm rasterizes with poppler's pdftoppm binary.
type Pdftoppm struct {
	Path string
	DPI  int
}

// FirstPage writes the PDF to a temp dir, renders page 1 to PNG and decodes it.
func (p Pdftoppm) FirstPage(ctx context.Context, data []byte) (image.Image, error) {
	bin := strings.TrimSpace(p.Path)
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}

	dir, err := os.MkdirTemp("", "resume-raster-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "resume.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}
	outRoot := filepath.Join(dir, "page")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-png", "-singlefile",
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(dpi),
		in, outRoot,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(outRoot + ".png")
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
