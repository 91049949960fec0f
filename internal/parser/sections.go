package parser

import (
	"strings"

	"github.com/dgallion1/studykit/internal/document"
)

// sectionBuilder turns a heading-structured stream (Markdown, HTML, DOCX)
// into pages. Every run of body text under a heading becomes one page titled
// with the heading breadcrumb, e.g. "Results > Revenue".
type sectionBuilder struct {
	doc   *document.Document
	trail []heading
	text  strings.Builder
}

type heading struct {
	title string
	level int
}

func newSectionBuilder(doc *document.Document) *sectionBuilder {
	return &sectionBuilder{doc: doc}
}

func (b *sectionBuilder) heading(level int, title string) {
	b.flush()
	for len(b.trail) > 0 && b.trail[len(b.trail)-1].level >= level {
		b.trail = b.trail[:len(b.trail)-1]
	}
	b.trail = append(b.trail, heading{title: title, level: level})
}

func (b *sectionBuilder) paragraph(t string) {
	if t == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(t)
}

func (b *sectionBuilder) flush() {
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	titles := make([]string, len(b.trail))
	for i, h := range b.trail {
		titles[i] = h.title
	}
	b.doc.Pages = append(b.doc.Pages, document.Page{
		Number: len(b.doc.Pages) + 1,
		Title:  strings.Join(titles, " > "),
		Text:   t,
	})
}

func (b *sectionBuilder) finish() *document.Document {
	b.flush()
	return b.doc
}
