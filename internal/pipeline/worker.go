package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/store"
	"github.com/dgallion1/studykit/internal/summarize"
)

// SummaryCache stores finished summaries keyed by content hash and options
// variant. *store.Store implements it.
type SummaryCache interface {
	GetSummary(ctx context.Context, hash, variant string) (store.Summary, error)
	PutSummary(ctx context.Context, sum store.Summary) error
}

// Worker processes a single summarization job.
type Worker struct {
	summarizer *summarize.Summarizer
	cache      SummaryCache
	bus        *events.Bus
	log        *slog.Logger

	maxAttempts int
	backoff     func(attempt int) time.Duration
}

func NewWorker(s *summarize.Summarizer, cache SummaryCache, bus *events.Bus, log *slog.Logger, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = MaxRetries
	}
	return &Worker{
		summarizer:  s,
		cache:       cache,
		bus:         bus,
		log:         log,
		maxAttempts: maxAttempts,
		backoff:     Backoff,
	}
}

// Process summarizes the job's text, retrying the whole request on
// retryable provider errors, and caches the result.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)
	start := time.Now()

	opts := job.Options
	opts.OnProgress = func(p summarize.Progress) {
		job.SetProgress(p)
		if p.Status == summarize.StatusAggregating {
			job.SetStatus(StatusAggregating, "aggregating")
		}
		w.publish(job)
	}

	text := job.Text()
	var (
		res summarize.Result
		err error
	)
	for attempt := range w.maxAttempts {
		job.IncrAttempts()
		job.SetStatus(StatusSummarizing, "summarizing")
		w.publish(job)

		res, err = w.summarizer.Run(ctx, text, opts)
		if err == nil || !IsRetryable(err) || attempt == w.maxAttempts-1 {
			break
		}
		log.Warn("retryable summarization error", "attempt", attempt, "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusRetrying, "backoff")
		w.publish(job)
		select {
		case <-time.After(retryDelay(err, attempt, w.backoff)):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		log.Error("summarization failed", "error", err, "attempts", job.Snapshot().Attempts)
		job.Fail(failedPhase(err), err)
		w.publish(job)
		return
	}

	if res.AggregationErr != nil {
		job.AddError(res.AggregationErr.Error())
	}
	// A fallback concatenation is served but not cached, so a later request
	// gets another chance at a unified summary.
	if w.cache != nil && res.AggregationErr == nil {
		err := w.cache.PutSummary(ctx, store.Summary{
			ContentHash:   job.ContentHash,
			Variant:       job.Options.Variant(),
			Text:          res.Text,
			Chunks:        res.Chunks,
			Aggregated:    res.Aggregated,
			ProcessTimeMs: time.Since(start).Milliseconds(),
		})
		if err != nil {
			log.Warn("summary cache write failed", "error", err)
		}
	}
	job.Complete(res, false)
	w.publish(job)
	log.Info("summarization complete", "chunks", res.Chunks, "duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) publish(job *Job) {
	w.bus.Publish(events.TopicJobUpdated, job.Snapshot())
}

func failedPhase(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "summarizing"
}
