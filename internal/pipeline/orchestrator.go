package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/document"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/store"
	"github.com/dgallion1/studykit/internal/summarize"
)

var ErrQueueFull = errors.New("job queue is full")

// Orchestrator manages the summarization worker pool.
type Orchestrator struct {
	jobs       *JobStore
	queue      chan *Job
	summarizer *summarize.Summarizer
	cache      SummaryCache
	bus        *events.Bus
	log        *slog.Logger
	cfg        config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
// cache may be nil.
func NewOrchestrator(cfg config.Config, s *summarize.Summarizer, cache SummaryCache, bus *events.Bus, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:       NewJobStore(cfg.JobTTL),
		queue:      make(chan *Job, cfg.MaxQueueSize),
		summarizer: s,
		cache:      cache,
		bus:        bus,
		log:        log,
		cfg:        cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.summarizer, o.cache, o.bus, o.log, o.cfg.LLMMaxRetries)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit creates a job summarizing doc. A cached summary for the same
// content and options completes the job immediately without queueing.
func (o *Orchestrator) Submit(ctx context.Context, doc *document.Document, opts summarize.Options) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	hash := doc.ContentHash()
	job := NewJob(uuid.NewString(), doc.ID, doc.Title, doc.FullText(), hash, opts)
	o.jobs.Put(job)

	if o.cache != nil {
		sum, err := o.cache.GetSummary(ctx, hash, opts.Variant())
		switch {
		case err == nil:
			job.Complete(summarize.Result{Text: sum.Text, Chunks: sum.Chunks, Aggregated: sum.Aggregated}, true)
			o.log.Info("summary served from cache", "job_id", job.ID, "doc_id", doc.ID)
			o.bus.Publish(events.TopicJobUpdated, job.Snapshot())
			return job, nil
		case !errors.Is(err, store.ErrNotFound):
			o.log.Warn("summary cache lookup failed", "error", err)
		}
	}

	select {
	case o.queue <- job:
		return job, nil
	default:
		job.Fail("queue_full", ErrQueueFull)
		return job, fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
