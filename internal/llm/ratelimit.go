package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit spaces calls to at most perSecond requests per second.
// A non-positive rate disables limiting.
func WithRateLimit(p Provider, perSecond float64) Provider {
	if perSecond <= 0 {
		return p
	}
	return &rateLimited{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (r *rateLimited) Name() string { return r.inner.Name() }

func (r *rateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.Complete(ctx, req)
}
