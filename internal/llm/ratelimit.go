package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side rate limiting for LLM providers.
type RateLimitConfig struct {
	// RequestsPerSecond limits the number of API calls (0 = unlimited).
	RequestsPerSecond float64
	// Burst allows short bursts above the sustained rate (default 1).
	Burst int
}

// RateLimitProvider wraps a provider with a token-bucket limiter shared by
// Complete and Embed, so completion and embedding calls draw from the same
// budget the upstream API enforces.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = &RateLimitConfig{}
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RateLimitProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for limiter clearance and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Complete(ctx, prompt, opts)
}

// Embed waits for limiter clearance and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
