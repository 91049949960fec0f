// Package document holds extracted text as an ordered list of pages.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PageSeparator joins page texts in FullText.
const PageSeparator = "\n\n"

// Document is the output of text extraction.
type Document struct {
	ID       string // Assigned when persisted
	Title    string // From metadata or filename
	Filename string
	Pages    []Page // In source order; numbers need not be contiguous
}

// Page is one page (PDF) or one section (other formats) of text.
type Page struct {
	Number int    `json:"number"`
	Title  string `json:"title,omitempty"` // "Page 3", heading breadcrumb, row range
	Text   string `json:"text"`
}

// FullText concatenates page texts in order.
func (d *Document) FullText() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, PageSeparator)
}

// IsEmpty reports whether the document has no non-blank text.
func (d *Document) IsEmpty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// Page returns the page with the given number.
func (d *Document) Page(number int) (Page, bool) {
	for _, p := range d.Pages {
		if p.Number == number {
			return p, true
		}
	}
	return Page{}, false
}

// WordCount counts whitespace-separated words across all pages.
func (d *Document) WordCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(strings.Fields(p.Text))
	}
	return n
}

// ContentHash returns the hex SHA-256 of FullText. It keys the summary cache.
func (d *Document) ContentHash() string {
	h := sha256.Sum256([]byte(d.FullText()))
	return hex.EncodeToString(h[:])
}
