// Package relevance ranks a document's pages against a free-text query
// using an inverted index of word offsets built once per document.
package relevance

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/studykit/internal/document"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
}

// minTermLen is the shortest indexed token, in characters.
const minTermLen = 4

// Index maps terms to the word offsets where they occur and offsets to
// pages. It is read-only after Build and safe for concurrent queries.
type Index struct {
	postings map[string][]int
	// pageEnds[i] is the number of words up to and including pages[i].
	pageEnds []int
	pages    []int
}

// Build indexes fullText. Offsets are resolved to pages by counting the
// words of each page in order, so fullText is expected to be the pages
// joined with non-word separators (document.FullText does this).
func Build(fullText string, pages []document.Page) *Index {
	idx := &Index{
		postings: make(map[string][]int),
		pageEnds: make([]int, len(pages)),
		pages:    make([]int, len(pages)),
	}
	for i, w := range tokenize(fullText) {
		if indexable(w) {
			idx.postings[w] = append(idx.postings[w], i)
		}
	}
	total := 0
	for i, p := range pages {
		total += len(tokenize(p.Text))
		idx.pageEnds[i] = total
		idx.pages[i] = p.Number
	}
	return idx
}

// FromDocument indexes a parsed document.
func FromDocument(d *document.Document) *Index {
	return Build(d.FullText(), d.Pages)
}

// Query returns page numbers ordered by how many query-term occurrences
// they hold, highest first. Equal scores keep the order in which pages were
// first hit. A query with no indexed terms returns an empty slice.
func (idx *Index) Query(q string) []int {
	scores := make(map[int]int)
	var order []int
	seen := make(map[string]bool)
	for _, w := range tokenize(q) {
		if seen[w] {
			continue
		}
		seen[w] = true
		for _, off := range idx.postings[w] {
			page, ok := idx.pageAt(off)
			if !ok {
				continue
			}
			if _, hit := scores[page]; !hit {
				order = append(order, page)
			}
			scores[page]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if order == nil {
		return []int{}
	}
	return order
}

// Top returns at most n pages from Query.
func (idx *Index) Top(q string, n int) []int {
	pages := idx.Query(q)
	if n >= 0 && len(pages) > n {
		pages = pages[:n]
	}
	return pages
}

// Occurrences returns the word offsets recorded for term.
func (idx *Index) Occurrences(term string) []int {
	return append([]int(nil), idx.postings[strings.ToLower(term)]...)
}

// Terms returns the number of distinct indexed terms.
func (idx *Index) Terms() int { return len(idx.postings) }

func (idx *Index) pageAt(offset int) (int, bool) {
	i := sort.Search(len(idx.pageEnds), func(i int) bool { return idx.pageEnds[i] > offset })
	if i == len(idx.pageEnds) {
		return 0, false
	}
	return idx.pages[i], true
}

func tokenize(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

func indexable(w string) bool {
	return !stopWords[w] && utf8.RuneCountInString(w) >= minTermLen
}
