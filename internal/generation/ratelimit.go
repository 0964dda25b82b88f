package generation

import (
	"context"

	"golang.org/x/time/rate"

	"groundrag/internal/domain"
)

var _ domain.Generator = (*RateLimited)(nil)

// RateLimited spaces calls to a Generator so bursts of queries stay under the
// provider's quota instead of failing with rate-limit errors.
type RateLimited struct {
	next    domain.Generator
	limiter *rate.Limiter
}

// NewRateLimited allows rps calls per second with the given burst. rps <= 0
// returns next unchanged.
func NewRateLimited(next domain.Generator, rps float64, burst int) domain.Generator {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Name() string { return r.next.Name() }

// Generate waits for a token, then delegates. Waiting honours ctx.
func (r *RateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", domain.StageFailure(domain.StageGenerating, domain.KindGeneration, "waiting for rate limit", ctx.Err())
		}
		return "", domain.GenerationError(domain.SubKindRateLimit, "request would exceed the configured rate limit", err)
	}
	return r.next.Generate(ctx, prompt)
}
