package domain

import (
	"path/filepath"
	"strings"
)

// PageText is the text of one page of a source document.
// OCR-produced pages may have empty Content when recognition failed for that page.
type PageText struct {
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"` // 1-based, 0 when the source has no pages
	Source     string `json:"source"`
	Filename   string `json:"filename"`
}

// Page returns the page number, or nil when it is unknown.
func (p PageText) Page() *int {
	if p.PageNumber <= 0 {
		return nil
	}
	n := p.PageNumber
	return &n
}

// Chunk is a bounded span of page text with a stable identifier.
type Chunk struct {
	ID     string
	Text   string
	Source string
	Page   *int
}

// SourceStem returns the file name of path without directory and extension.
func SourceStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
