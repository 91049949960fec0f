package summarize

import (
	"errors"
	"fmt"
)

// ErrGeneration matches every summarization failure reported by this
// package, whichever stage it came from.
var ErrGeneration = errors.New("summarize: generation failed")

// ChunkProcessingError reports that the provider call for one chunk failed.
// The whole request fails with it; no partial text is returned.
type ChunkProcessingError struct {
	Index int // Zero-based chunk index.
	Total int
	Err   error
}

func (e *ChunkProcessingError) Error() string {
	return fmt.Sprintf("summarize chunk %d/%d: %v", e.Index+1, e.Total, e.Err)
}

func (e *ChunkProcessingError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// AggregationError reports that the unify pass failed. Summarize recovers
// from it by returning the concatenated chunk summaries, so callers only see
// it through Result.AggregationErr, logs and the event bus.
type AggregationError struct {
	Chunks int
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("summarize aggregation of %d parts: %v", e.Chunks, e.Err)
}

func (e *AggregationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

var errEmptyReply = errors.New("empty reply")
