// Package chunker splits long extracted text into ordered chunks that fit a
// token budget. Consecutive prose chunks share trailing words for context;
// runs of table rows are emitted as chunks of their own.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config controls chunking behavior.
type Config struct {
	MaxChunkSize int            // Token budget per chunk.
	OverlapSize  int            // Tokens of trailing context carried into the next chunk.
	Estimator    TokenEstimator // Defaults to Heuristic.
}

// DefaultConfig returns the standard budget.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize: 4000,
		OverlapSize:  200,
		Estimator:    Heuristic{},
	}
}

func (c Config) normalized() Config {
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = 4000
	}
	if c.OverlapSize < 0 || c.OverlapSize >= c.MaxChunkSize {
		c.OverlapSize = c.MaxChunkSize / 20
	}
	if c.Estimator == nil {
		c.Estimator = Heuristic{}
	}
	return c
}

// overlapWords is the most words that seed the next prose chunk.
func (c Config) overlapWords() int {
	return int(float64(c.OverlapSize) / DefaultTokensPerChar)
}

// Chunk is one bounded segment of a document.
type Chunk struct {
	Index   int
	Text    string
	IsTable bool
	Tokens  int // Estimated size of Text.
	Overlap int // Leading words repeated from the previous chunk.
}

var (
	sentenceEnd  = regexp.MustCompile(`([.!?])\s+`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	citationMark = regexp.MustCompile(`\[(\d+)\]`)
)

// Preprocess puts each sentence on its own line, collapses runs of blank
// lines and rewrites numeric citations like [12] as (citation: 12).
func Preprocess(text string) string {
	text = sentenceEnd.ReplaceAllString(text, "$1\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = citationMark.ReplaceAllString(text, "(citation: $1)")
	return strings.TrimSpace(text)
}

// ChunkText preprocesses text and splits it. Prose chunks are slices of the
// preprocessed text, so a document that fits the budget comes back as a
// single chunk equal to Preprocess(text). Empty input yields no chunks.
func ChunkText(text string, cfg Config) []Chunk {
	return Split(Preprocess(text), cfg)
}

// Split chunks already-preprocessed text.
func Split(text string, cfg Config) []Chunk {
	cfg = cfg.normalized()
	s := &splitter{
		text:   text,
		cfg:    cfg,
		budget: cfg.MaxChunkSize - cfg.OverlapSize,
	}
	for _, w := range wordSpans(text) {
		word := text[w.start:w.end]
		if isTableRow(word) {
			s.closeProse(false)
			s.table = append(s.table, word)
			continue
		}
		s.flushTable()
		s.addWord(w)
	}
	s.flushTable()
	s.closeProse(false)
	return s.chunks
}

type span struct {
	start, end int
}

type splitter struct {
	text   string
	cfg    Config
	budget int
	chunks []Chunk

	cur     []span
	costs   []int
	total   int
	overlap int // leading entries of cur copied from the previous chunk

	table []string
}

func (s *splitter) addWord(w span) {
	cost := s.cfg.Estimator.Estimate(s.text[w.start:w.end])
	if cost > s.budget {
		for _, piece := range s.splitOversize(w) {
			s.addWord(piece)
		}
		return
	}

	if s.total+cost > s.budget {
		s.closeProse(true)
		// The carried context alone can leave no room for this word.
		if s.total+cost > s.budget {
			s.reset()
		}
	}
	s.cur = append(s.cur, w)
	s.costs = append(s.costs, cost)
	s.total += cost
}

// closeProse emits the buffered prose if it holds any new words. With carry
// set, the next buffer starts with the tail of the emitted chunk.
func (s *splitter) closeProse(carry bool) {
	if len(s.cur) <= s.overlap {
		s.reset()
		return
	}
	s.chunks = append(s.chunks, Chunk{
		Index:   len(s.chunks),
		Text:    s.text[s.cur[0].start:s.cur[len(s.cur)-1].end],
		Tokens:  s.total,
		Overlap: s.overlap,
	})
	if !carry {
		s.reset()
		return
	}

	k := s.carryCount()
	s.cur = append([]span(nil), s.cur[len(s.cur)-k:]...)
	s.costs = append([]int(nil), s.costs[len(s.costs)-k:]...)
	s.total = 0
	for _, c := range s.costs {
		s.total += c
	}
	s.overlap = k
}

// carryCount picks how many trailing words to repeat: at most
// OverlapSize/1.3 words and OverlapSize tokens, and never the whole chunk.
func (s *splitter) carryCount() int {
	limit := min(s.cfg.overlapWords(), len(s.cur)-1)
	k, tokens := 0, 0
	for k < limit {
		c := s.costs[len(s.costs)-1-k]
		if tokens+c > s.cfg.OverlapSize {
			break
		}
		tokens += c
		k++
	}
	return k
}

func (s *splitter) reset() {
	s.cur, s.costs, s.total, s.overlap = nil, nil, 0, 0
}

// flushTable emits buffered table rows. Rows are never mixed with prose; a
// table larger than the budget is split between rows.
func (s *splitter) flushTable() {
	if len(s.table) == 0 {
		return
	}
	var rows []string
	tokens := 0
	emit := func() {
		if len(rows) == 0 {
			return
		}
		s.chunks = append(s.chunks, Chunk{
			Index:   len(s.chunks),
			Text:    strings.Join(rows, "\n"),
			IsTable: true,
			Tokens:  tokens,
		})
		rows, tokens = nil, 0
	}
	for _, raw := range s.table {
		row := FormatTableRow(raw)
		if row == "" {
			continue
		}
		cost := EstimateText(s.cfg.Estimator, row)
		if tokens+cost > s.cfg.MaxChunkSize {
			emit()
		}
		rows = append(rows, row)
		tokens += cost
	}
	emit()
	s.table = nil
}

// splitOversize cuts a single word whose estimate exceeds the budget into
// pieces that fit.
func (s *splitter) splitOversize(w span) []span {
	var pieces []span
	start := w.start
	for start < w.end {
		end := start
		for end < w.end {
			_, size := utf8.DecodeRuneInString(s.text[end:])
			if s.cfg.Estimator.Estimate(s.text[start:end+size]) > s.budget && end > start {
				break
			}
			end += size
		}
		pieces = append(pieces, span{start, end})
		start = end
	}
	return pieces
}

// isTableRow reports whether a word looks like a pipe-delimited row, e.g. |a|b|.
func isTableRow(word string) bool {
	return len(word) >= 2 && word[0] == '|' && word[len(word)-1] == '|'
}

// FormatTableRow drops the pipe delimiters and blank cells and rejoins the
// remaining cells with " | ".
func FormatTableRow(row string) string {
	var cells []string
	for _, cell := range strings.Split(row, "|") {
		if c := strings.TrimSpace(cell); c != "" {
			cells = append(cells, c)
		}
	}
	return strings.Join(cells, " | ")
}

// wordSpans returns the byte ranges of whitespace-separated words.
func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}
