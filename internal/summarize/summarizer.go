// Package summarize turns long text into one summary by splitting it with
// the chunker, summarizing each chunk in document order and unifying the
// parts with a final provider call.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgallion1/studykit/internal/chunker"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/llm"
)

type Format string

const (
	Bullets    Format = "bullets"
	Paragraphs Format = "paragraphs"
)

type Domain string

const (
	General  Domain = "general"
	Academic Domain = "academic"
	Legal    Domain = "legal"
)

const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.5

	// placeholderConfidence is what every chunk scores until a real fidelity
	// metric exists.
	placeholderConfidence = 0.85
)

// Progress statuses, in the order they are reported.
const (
	StatusGenerating  = "Generating summary..."
	StatusAggregating = "Creating final summary..."
	StatusComplete    = "Summary complete"
)

// Progress is reported before each chunk, before the unify pass and at the end.
type Progress struct {
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	CurrentChunk int     `json:"current_chunk"`
	TotalChunks  int     `json:"total_chunks"`
}

type ProgressFunc func(Progress)

// Options control prompt wording and sampling for one request.
type Options struct {
	Format             Format   `json:"format,omitempty"`
	HighlightKeyPoints bool     `json:"highlight_key_points,omitempty"`
	PreserveStructure  bool     `json:"preserve_structure,omitempty"`
	ExtractDefinitions bool     `json:"extract_definitions,omitempty"`
	Domain             Domain   `json:"domain,omitempty"`
	MaxTokens          int      `json:"max_tokens,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	ConfidenceScoring  bool     `json:"confidence_scoring,omitempty"`

	OnProgress ProgressFunc `json:"-"`
}

func (o Options) withDefaults() Options {
	if o.Format != Bullets {
		o.Format = Paragraphs
	}
	switch o.Domain {
	case Academic, Legal:
	default:
		o.Domain = General
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == nil {
		o.Temperature = llm.Float(DefaultTemperature)
	}
	return o
}

// Validate rejects unknown enumeration values. Empty values take defaults.
func (o Options) Validate() error {
	switch o.Format {
	case "", Bullets, Paragraphs:
	default:
		return fmt.Errorf("unknown summary format %q", o.Format)
	}
	switch o.Domain {
	case "", General, Academic, Legal:
	default:
		return fmt.Errorf("unknown summary domain %q", o.Domain)
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", *o.Temperature)
	}
	return nil
}

// Variant identifies the options that change the output, for caching.
func (o Options) Variant() string {
	o = o.withDefaults()
	return fmt.Sprintf("%s/%s/h%t/s%t/d%t/c%t/%d/%.2f",
		o.Format, o.Domain, o.HighlightKeyPoints, o.PreserveStructure,
		o.ExtractDefinitions, o.ConfidenceScoring, o.MaxTokens, *o.Temperature)
}

// Result is a finished summary plus how it was produced.
type Result struct {
	Text       string
	Chunks     int
	Aggregated bool
	Confidence float64 // Zero unless confidence scoring was requested.
	// AggregationErr is set when the unify pass failed and Text is the
	// concatenation of the part summaries.
	AggregationErr *AggregationError
}

type Summarizer struct {
	provider llm.Provider
	chunks   chunker.Config
	log      *slog.Logger
	bus      *events.Bus
	tracer   trace.Tracer
}

type Option func(*Summarizer)

func WithChunkConfig(cfg chunker.Config) Option {
	return func(s *Summarizer) { s.chunks = cfg }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Summarizer) { s.log = log }
}

// WithBus publishes progress and aggregation fallbacks.
func WithBus(bus *events.Bus) Option {
	return func(s *Summarizer) { s.bus = bus }
}

func New(p llm.Provider, opts ...Option) *Summarizer {
	s := &Summarizer{
		provider: p,
		chunks:   chunker.DefaultConfig(),
		log:      slog.Default(),
		tracer:   otel.Tracer("github.com/dgallion1/studykit/internal/summarize"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize returns the summary text for the given input. Whitespace-only
// input yields "" without calling the provider.
func (s *Summarizer) Summarize(ctx context.Context, text string, opts Options) (string, error) {
	res, err := s.Run(ctx, text, opts)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Run is Summarize with details about chunking and aggregation.
func (s *Summarizer) Run(ctx context.Context, text string, opts Options) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()

	chunks := chunker.ChunkText(text, s.chunks)
	total := len(chunks)
	if total == 0 {
		// Nothing survived preprocessing, e.g. only empty table rows.
		return Result{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "summarize.run", trace.WithAttributes(
		attribute.Int("summarize.chunks", total),
		attribute.String("summarize.format", string(opts.Format)),
		attribute.String("summarize.domain", string(opts.Domain)),
	))
	defer span.End()

	log := s.log.With("chunks", total, "format", opts.Format)
	start := time.Now()

	parts := make([]string, 0, total)
	var confidence float64
	for i, c := range chunks {
		s.progress(opts, Progress{
			Status:       StatusGenerating,
			Progress:     float64(i) / float64(total) * 100,
			CurrentChunk: i + 1,
			TotalChunks:  total,
		})
		out, err := s.provider.Complete(ctx, BuildChunkRequest(opts, i, total, c.Text))
		if err != nil {
			cerr := &ChunkProcessingError{Index: i, Total: total, Err: err}
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Error())
			log.Warn("chunk summary failed", "chunk", i+1, "error", err)
			return Result{}, cerr
		}
		parts = append(parts, out)
		if opts.ConfidenceScoring {
			confidence += confidenceScore(out, c.Text)
		}
	}

	res := Result{Text: parts[0], Chunks: total}
	if total > 1 {
		s.progress(opts, Progress{
			Status:       StatusAggregating,
			Progress:     95,
			CurrentChunk: total,
			TotalChunks:  total,
		})
		res.Text, res.AggregationErr = s.unify(ctx, opts, parts)
		res.Aggregated = res.AggregationErr == nil
		if res.AggregationErr != nil {
			span.RecordError(res.AggregationErr)
			log.Warn("aggregation failed, returning concatenated parts", "error", res.AggregationErr.Err)
			s.bus.Publish(events.TopicSummarizeAggregation, res.AggregationErr)
		}
	}

	if opts.ConfidenceScoring {
		res.Confidence = confidence / float64(total)
		res.Text = fmt.Sprintf("[Confidence Score: %d%%]\n\n%s", int(math.Round(res.Confidence*100)), res.Text)
	}

	s.progress(opts, Progress{
		Status:       StatusComplete,
		Progress:     100,
		CurrentChunk: total,
		TotalChunks:  total,
	})
	log.Info("summary complete", "aggregated", res.Aggregated, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (s *Summarizer) unify(ctx context.Context, opts Options, parts []string) (string, *AggregationError) {
	joined := strings.Join(parts, "\n\n")
	out, err := s.provider.Complete(ctx, BuildUnifyRequest(opts, joined))
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyReply
	}
	if err != nil {
		return joined, &AggregationError{Chunks: len(parts), Err: err}
	}
	return out, nil
}

func (s *Summarizer) progress(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
	s.bus.Publish(events.TopicSummarizeProgress, p)
}

// confidenceScore is a stub extension point: it returns a constant in [0, 1]
// rather than measuring how faithful the summary is to its source.
func confidenceScore(summary, source string) float64 {
	return placeholderConfidence
}
