package pipeline

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/studykit/internal/llm"
)

const (
	// MaxRetries is the default number of attempts per job.
	MaxRetries = 3

	maxBackoff = 30 * time.Second
)

// IsRetryable reports whether err carries a transient provider failure.
// Summarizer errors wrap the provider error, so a rate limit on any chunk
// qualifies.
func IsRetryable(err error) bool {
	var retryErr *llm.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff is exponential from one second, capped at maxBackoff, plus up to
// half again in jitter. attempt is zero-based.
func Backoff(attempt int) time.Duration {
	base := maxBackoff
	if attempt < 5 {
		base = min(time.Second<<attempt, maxBackoff)
	}
	return base + time.Duration(rand.Int64N(int64(base)/2))
}

// retryDelay prefers the provider's Retry-After hint over backoff. Hints are
// clamped to maxBackoff.
func retryDelay(err error, attempt int, backoff func(int) time.Duration) time.Duration {
	var retryErr *llm.RetryableError
	if errors.As(err, &retryErr) && retryErr.RetryAfter > 0 {
		return min(retryErr.RetryAfter, maxBackoff)
	}
	return backoff(attempt)
}
