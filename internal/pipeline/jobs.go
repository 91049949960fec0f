package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/studykit/internal/summarize"
)

// JobStatus represents the state of a summarization job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusSummarizing JobStatus = "summarizing"
	StatusAggregating JobStatus = "aggregating"
	StatusRetrying    JobStatus = "retrying"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the summarization of one document with one set of options.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	DocID string `json:"doc_id"`
	Title string `json:"title"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Progress Progress  `json:"progress"`

	Options     summarize.Options `json:"options"`
	ContentHash string            `json:"content_hash,omitempty"`
	Attempts    int               `json:"attempts"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Internal: not serialized.
	text       string
	result     string
	cached     bool
	aggregated bool
	fallback   bool
	errors     []string
}

// Progress mirrors the summarizer's progress reports.
type Progress struct {
	TotalChunks  int      `json:"total_chunks"`
	CurrentChunk int      `json:"current_chunk"`
	Percent      float64  `json:"percent"`
	Message      string   `json:"message"`
	Errors       []string `json:"errors"`
}

// NewJob prepares a queued job for text.
func NewJob(id, docID, title, text, contentHash string, opts summarize.Options) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		DocID:       docID,
		Title:       title,
		Status:      StatusQueued,
		Phase:       "queued",
		Options:     opts,
		ContentHash: contentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
		text:        text,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs that have not changed within the TTL.
// Running jobs are kept however old they are.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetProgress records a summarizer progress report.
func (j *Job) SetProgress(p summarize.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = p.TotalChunks
	j.Progress.CurrentChunk = p.CurrentChunk
	j.Progress.Percent = p.Progress
	j.Progress.Message = p.Status
	j.UpdatedAt = time.Now()
}

// IncrAttempts counts one summarization attempt and returns the total.
func (j *Job) IncrAttempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Attempts++
	j.UpdatedAt = time.Now()
	return j.Attempts
}

// Complete stores the summary and marks the job completed.
func (j *Job) Complete(res summarize.Result, cached bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res.Text
	j.cached = cached
	j.aggregated = res.Aggregated
	j.fallback = res.AggregationErr != nil
	j.Progress.TotalChunks = res.Chunks
	j.Progress.CurrentChunk = res.Chunks
	j.Progress.Percent = 100
	j.Status = StatusCompleted
	j.Phase = "done"
	j.text = ""
	j.UpdatedAt = time.Now()
}

// Fail records err and marks the job failed.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.Progress.Errors = j.errors
	j.Status = StatusFailed
	j.Phase = phase
	j.text = ""
	j.UpdatedAt = time.Now()
}

// Text returns the input text. It is released once the job finishes.
func (j *Job) Text() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.text
}

// Result returns the summary of a completed job.
func (j *Job) Result() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string            `json:"job_id"`
	DocID       string            `json:"doc_id"`
	Title       string            `json:"title"`
	Status      JobStatus         `json:"status"`
	Phase       string            `json:"phase"`
	Progress    Progress          `json:"progress"`
	Options     summarize.Options `json:"options"`
	Attempts    int               `json:"attempts"`
	Cached      bool              `json:"cached"`
	Aggregated  bool              `json:"aggregated"`
	Fallback    bool              `json:"aggregation_fallback"`
	Result      string            `json:"result,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		DocID:       j.DocID,
		Title:       j.Title,
		Status:      j.Status,
		Phase:       j.Phase,
		Progress:    p,
		Options:     j.Options,
		Attempts:    j.Attempts,
		Cached:      j.cached,
		Aggregated:  j.aggregated,
		Fallback:    j.fallback,
		Result:      j.result,
		ContentHash: j.ContentHash,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}
