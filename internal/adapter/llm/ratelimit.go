package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"golang.org/x/time/rate"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
)

// Compile-time interface assertion.
var _ domain.LanguageModel = (*RateLimitedProvider)(nil)

// errRateLimitWait marks a call that never left the client because no
// token became available in time.
var errRateLimitWait = errors.New("waiting for rate limiter")

// RateLimitedProvider paces calls to a LanguageModel with a token bucket.
// A stream holds no token once it is established.
type RateLimitedProvider struct {
	inner   domain.LanguageModel
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows cfg.RequestsPerMinute calls per minute with
// bursts of cfg.Burst (at least 1).
func NewRateLimitedProvider(inner domain.LanguageModel, cfg config.RateLimitConfig) *RateLimitedProvider {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute)/60.0, burst),
	}
}

func (p *RateLimitedProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("provider %q: %w: %w", p.inner.Name(), errRateLimitWait, err)
	}
	return nil
}

// Generate implements domain.LanguageModel.
func (p *RateLimitedProvider) Generate(ctx context.Context, req domain.CallRequest) (*domain.GenerateResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Generate(ctx, req)
}

// Stream implements domain.LanguageModel.
func (p *RateLimitedProvider) Stream(ctx context.Context, req domain.CallRequest) (iter.Seq2[domain.StreamPart, error], error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Stream(ctx, req)
}

// Name implements domain.LanguageModel.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
