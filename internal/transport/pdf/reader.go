// Package pdf reads digital page text from PDF files and renders pages to images for OCR.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"
)

// Reader extracts the embedded text layer of PDF files.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Pages returns the plain text of every page in page order.
// Pages without a text layer (or that fail to decode) yield an empty string.
func (r *Reader) Pages(ctx context.Context, path string) (pages []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("parse pdf %s: %v", filepath.Base(path), rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", filepath.Base(path), err)
	}

	n := reader.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
