package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/studykit/internal/document"
)

const csvRowsPerPage = 20

// CSVParser handles CSV files.
type CSVParser struct{}

// Rows are grouped into pages of csvRowsPerPage so that relevance results
// can point at a row range.
func (p *CSVParser) Parse(r io.Reader, filename string) (*document.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := newDocument(filename, ".csv")
	if len(records) == 0 {
		return doc, nil
	}

	// First row is headers.
	headers := records[0]

	dataRows := records[1:]
	for i := 0; i < len(dataRows); i += csvRowsPerPage {
		end := min(i+csvRowsPerPage, len(dataRows))
		batch := dataRows[i:end]

		var text strings.Builder
		text.WriteString("Headers: " + strings.Join(headers, ", ") + "\n\n")
		for _, row := range batch {
			for j, cell := range row {
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
				if j < len(row)-1 {
					text.WriteString(", ")
				}
			}
			text.WriteString("\n")
		}

		doc.Pages = append(doc.Pages, document.Page{
			Number: len(doc.Pages) + 1,
			Title:  fmt.Sprintf("Rows %d-%d", i+2, end+1), // 1-indexed, skip header
			Text:   strings.TrimSpace(text.String()),
		})
	}

	return doc, nil
}
