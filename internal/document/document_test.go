package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample() *Document {
	return &Document{
		Title: "notes",
		Pages: []Page{
			{Number: 1, Text: "alpha beta"},
			{Number: 3, Text: "gamma"},
		},
	}
}

func TestFullText(t *testing.T) {
	assert.Equal(t, "alpha beta\n\ngamma", sample().FullText())
}

func TestPageLookup(t *testing.T) {
	d := sample()
	p, ok := d.Page(3)
	assert.True(t, ok)
	assert.Equal(t, "gamma", p.Text)
	_, ok = d.Page(2)
	assert.False(t, ok)
}

func TestIsEmptyAndWordCount(t *testing.T) {
	assert.False(t, sample().IsEmpty())
	assert.Equal(t, 3, sample().WordCount())
	assert.True(t, (&Document{Pages: []Page{{Number: 1, Text: "  \n"}}}).IsEmpty())
	assert.True(t, (&Document{}).IsEmpty())
}

func TestContentHashStable(t *testing.T) {
	a, b := sample(), sample()
	b.Title = "other"
	assert.Equal(t, a.ContentHash(), b.ContentHash())
	b.Pages[1].Text = "delta"
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
	assert.Len(t, a.ContentHash(), 64)
}
