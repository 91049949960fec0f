package chunker

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// DefaultTokensPerChar is the calibrated cost of one character. It is an
// approximation and tends to overestimate for English prose.
const DefaultTokensPerChar = 1.3

// TokenEstimator returns the token cost of a single whitespace-free word.
type TokenEstimator interface {
	Estimate(word string) int
}

// Heuristic charges TokensPerChar per rune, rounded up.
type Heuristic struct {
	TokensPerChar float64
}

func (h Heuristic) Estimate(word string) int {
	f := h.TokensPerChar
	if f <= 0 {
		f = DefaultTokensPerChar
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(word)) * f))
}

// EstimateTokens gives a rough token count for arbitrary text using the
// default heuristic.
func EstimateTokens(text string) int {
	return EstimateText(Heuristic{}, text)
}

// EstimateText sums the per-word estimates of text.
func EstimateText(e TokenEstimator, text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		n += e.Estimate(w)
	}
	return n
}

// PretrainedEstimator counts tokens with a real tokenizer loaded from a
// tokenizer.json file. Results are memoized per word.
type PretrainedEstimator struct {
	tk       *tokenizer.Tokenizer
	fallback Heuristic

	mu    sync.Mutex
	cache map[string]int
}

// LoadPretrained loads a HuggingFace tokenizer.json.
func LoadPretrained(path string) (*PretrainedEstimator, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, err
	}
	return &PretrainedEstimator{tk: tk, cache: make(map[string]int)}, nil
}

func (p *PretrainedEstimator) Estimate(word string) int {
	p.mu.Lock()
	n, ok := p.cache[word]
	p.mu.Unlock()
	if ok {
		return n
	}

	en, err := p.tk.EncodeSingle(word, false)
	if err != nil {
		return p.fallback.Estimate(word)
	}
	n = max(len(en.Ids), 1)

	p.mu.Lock()
	p.cache[word] = n
	p.mu.Unlock()
	return n
}

// NewConfig builds a Config for the given budget. A non-empty tokenizerPath
// replaces the heuristic with a pretrained tokenizer.
func NewConfig(maxChunkSize, overlapSize int, tokenizerPath string) (Config, error) {
	cfg := Config{MaxChunkSize: maxChunkSize, OverlapSize: overlapSize, Estimator: Heuristic{}}
	if tokenizerPath == "" {
		return cfg.normalized(), nil
	}
	est, err := LoadPretrained(tokenizerPath)
	if err != nil {
		return Config{}, fmt.Errorf("load tokenizer %s: %w", tokenizerPath, err)
	}
	cfg.Estimator = est
	return cfg.normalized(), nil
}
