package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/studykit/internal/document"
)

// TextParser handles plain text files. Form feeds separate pages; blank
// lines separate paragraphs within a page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	doc := newDocument(filename, ".txt")

	var paragraphs []string
	var current strings.Builder
	pageNum := 1

	endParagraph := func() {
		if current.Len() > 0 {
			paragraphs = append(paragraphs, current.String())
			current.Reset()
		}
	}
	endPage := func() {
		endParagraph()
		if len(paragraphs) > 0 {
			doc.Pages = append(doc.Pages, document.Page{
				Number: pageNum,
				Title:  fmt.Sprintf("Page %d", pageNum),
				Text:   strings.Join(paragraphs, "\n\n"),
			})
		}
		paragraphs = nil
		pageNum++
	}

	for scanner.Scan() {
		segments := strings.Split(scanner.Text(), "\f")
		for i, line := range segments {
			if i > 0 {
				endPage()
			}
			if strings.TrimSpace(line) == "" {
				endParagraph()
				continue
			}
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	endPage()

	return doc, nil
}
