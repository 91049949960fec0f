package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/document"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/llm/llmtest"
	"github.com/dgallion1/studykit/internal/store"
	"github.com/dgallion1/studykit/internal/summarize"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type memCache struct {
	mu   sync.Mutex
	sums map[string]store.Summary
}

func newMemCache() *memCache { return &memCache{sums: make(map[string]store.Summary)} }

func (c *memCache) GetSummary(_ context.Context, hash, variant string) (store.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sums[hash+"|"+variant]
	if !ok {
		return store.Summary{}, store.ErrNotFound
	}
	return s, nil
}

func (c *memCache) PutSummary(_ context.Context, s store.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sums[s.ContentHash+"|"+s.Variant] = s
	return nil
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sums)
}

func testWorker(p llm.Provider, cache SummaryCache, bus *events.Bus) *Worker {
	w := NewWorker(summarize.New(p, summarize.WithLogger(quietLog)), cache, bus, quietLog, 3)
	w.backoff = func(int) time.Duration { return 0 }
	return w
}

func TestIsRetryable(t *testing.T) {
	rate := &llm.RetryableError{StatusCode: 429}
	if !IsRetryable(rate) {
		t.Error("expected RetryableError to be retryable")
	}
	wrapped := &summarize.ChunkProcessingError{Index: 1, Total: 3, Err: fmt.Errorf("call: %w", rate)}
	if !IsRetryable(wrapped) {
		t.Error("expected wrapped RetryableError to be retryable")
	}
	if IsRetryable(errors.New("bad request")) {
		t.Error("expected plain error not to be retryable")
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		got := Backoff(attempt)
		if got < base || got >= base+base/2 {
			t.Errorf("attempt %d: backoff %s outside [%s, %s)", attempt, got, base, base+base/2)
		}
	}
	if got := Backoff(10); got > 45*time.Second {
		t.Errorf("expected cap near 30s, got %s", got)
	}
}

func TestRetryDelay(t *testing.T) {
	fixed := func(int) time.Duration { return time.Second }
	hinted := fmt.Errorf("chunk 1: %w", &llm.RetryableError{StatusCode: 429, RetryAfter: 5 * time.Second})
	if got := retryDelay(hinted, 0, fixed); got != 5*time.Second {
		t.Errorf("expected Retry-After hint, got %s", got)
	}
	long := &llm.RetryableError{StatusCode: 503, RetryAfter: time.Hour}
	if got := retryDelay(long, 0, fixed); got != maxBackoff {
		t.Errorf("expected hint clamped to %s, got %s", maxBackoff, got)
	}
	if got := retryDelay(&llm.RetryableError{StatusCode: 500}, 2, fixed); got != time.Second {
		t.Errorf("expected fallback backoff, got %s", got)
	}
}

func TestWorker_ProcessCompletesAndCaches(t *testing.T) {
	cache := newMemCache()
	bus := events.New()
	var updates int
	bus.Subscribe(events.TopicJobUpdated, func(events.Event) { updates++ })

	w := testWorker(llmtest.New("the summary"), cache, bus)
	job := NewJob("j1", "d1", "Doc", "Short text to summarize.", "hash1", summarize.Options{})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Result != "the summary" {
		t.Errorf("unexpected result %q", snap.Result)
	}
	if snap.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", snap.Attempts)
	}
	sum, err := cache.GetSummary(context.Background(), "hash1", summarize.Options{}.Variant())
	if err != nil || sum.Text != "the summary" {
		t.Errorf("expected cached summary, got %+v, %v", sum, err)
	}
	if updates == 0 {
		t.Error("expected job updates on the bus")
	}
}

func TestWorker_RetriesRetryableErrors(t *testing.T) {
	fake := llmtest.New().Push(
		llmtest.Response{Err: &llm.RetryableError{StatusCode: 429, Message: "slow down"}},
		llmtest.Response{Err: &llm.RetryableError{StatusCode: 503, Message: "busy"}},
		llmtest.Response{Text: "third time lucky"},
	)
	w := testWorker(fake, nil, nil)
	job := NewJob("j2", "d1", "", "Some text.", "h", summarize.Options{})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted || snap.Result != "third time lucky" {
		t.Fatalf("expected success after retries, got %q %q", snap.Status, snap.Result)
	}
	if snap.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", snap.Attempts)
	}
	if len(snap.Progress.Errors) != 2 {
		t.Errorf("expected 2 recorded retry errors, got %v", snap.Progress.Errors)
	}
}

func TestWorker_GivesUpAfterMaxAttempts(t *testing.T) {
	fake := &llmtest.Fake{Handler: func(int, llm.Request) (string, error) {
		return "", &llm.RetryableError{StatusCode: 500}
	}}
	w := testWorker(fake, nil, nil)
	job := NewJob("j3", "d1", "", "Some text.", "h", summarize.Options{})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if fake.Calls() != 3 {
		t.Errorf("expected 3 provider calls, got %d", fake.Calls())
	}
}

func TestWorker_NonRetryableFailsImmediately(t *testing.T) {
	fake := llmtest.New().Push(llmtest.Response{Err: errors.New("invalid api key")})
	cache := newMemCache()
	w := testWorker(fake, cache, nil)
	job := NewJob("j4", "d1", "", "Some text.", "h", summarize.Options{})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "summarizing" {
		t.Fatalf("expected failed in summarizing, got %q/%q", snap.Status, snap.Phase)
	}
	if fake.Calls() != 1 {
		t.Errorf("expected a single provider call, got %d", fake.Calls())
	}
	if snap.Result != "" || cache.len() != 0 {
		t.Error("a failed job must not produce or cache a result")
	}
}

func TestWorker_FallbackIsNotCached(t *testing.T) {
	cache := newMemCache()
	fake := llmtest.New().Push(llmtest.Response{Text: "p1"}, llmtest.Response{Text: "p2"}, llmtest.Response{Err: errors.New("unify failed")})
	w := NewWorker(summarize.New(fake,
		summarize.WithLogger(quietLog),
		summarize.WithChunkConfig(chunkerConfigForTwoChunks())), cache, nil, quietLog, 1)

	job := NewJob("j5", "d1", "", strings.Repeat("word ", 9), "h", summarize.Options{})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted || !snap.Fallback {
		t.Fatalf("expected completed fallback, got %+v", snap)
	}
	if cache.len() != 0 {
		t.Error("fallback summaries must not be cached")
	}
}

func TestOrchestrator_SubmitServesCacheHit(t *testing.T) {
	cache := newMemCache()
	doc := &document.Document{ID: "d1", Title: "Doc", Pages: []document.Page{{Number: 1, Text: "Cached text."}}}
	opts := summarize.Options{Format: summarize.Bullets}
	_ = cache.PutSummary(context.Background(), store.Summary{ContentHash: doc.ContentHash(), Variant: opts.Variant(), Text: "- cached"})

	fake := llmtest.New()
	o := NewOrchestrator(testConfig(), summarize.New(fake), cache, nil, quietLog)
	job, err := o.Submit(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := job.Snapshot()
	if snap.Status != StatusCompleted || !snap.Cached || snap.Result != "- cached" {
		t.Errorf("expected cached completion, got %+v", snap)
	}
	if o.GetJob(job.ID) != job {
		t.Error("expected job to be registered")
	}
	if fake.Calls() != 0 || o.QueueDepth() != 0 {
		t.Error("cache hit must not queue work")
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	o := NewOrchestrator(cfg, summarize.New(llmtest.New()), nil, nil, quietLog)
	doc := &document.Document{ID: "d1", Pages: []document.Page{{Number: 1, Text: "text"}}}

	if _, err := o.Submit(context.Background(), doc, summarize.Options{}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	job, err := o.Submit(context.Background(), doc, summarize.Options{})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if job.Snapshot().Status != StatusFailed {
		t.Error("expected rejected job to be failed")
	}
}

func TestOrchestrator_RejectsInvalidOptions(t *testing.T) {
	o := NewOrchestrator(testConfig(), summarize.New(llmtest.New()), nil, nil, quietLog)
	doc := &document.Document{ID: "d1"}
	if _, err := o.Submit(context.Background(), doc, summarize.Options{Format: "poem"}); err == nil {
		t.Error("expected invalid options to be rejected")
	}
}

func TestOrchestrator_RunsJobs(t *testing.T) {
	cfg := testConfig()
	cfg.WorkerCount = 2
	o := NewOrchestrator(cfg, summarize.New(llmtest.New("done"), summarize.WithLogger(quietLog)), newMemCache(), nil, quietLog)
	o.Start(context.Background())
	defer o.Stop()

	doc := &document.Document{ID: "d1", Pages: []document.Page{{Number: 1, Text: "Worker pool text."}}}
	job, err := o.Submit(context.Background(), doc, summarize.Options{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !job.Snapshot().Status.Done() {
		if time.Now().After(deadline) {
			t.Fatal("job did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := job.Snapshot().Result; got != "done" {
		t.Errorf("expected %q, got %q", "done", got)
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.WorkerCount = 1
	cfg.MaxQueueSize = 10
	cfg.JobTTL = time.Hour
	return cfg
}
