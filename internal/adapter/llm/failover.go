package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"chatstream/internal/domain"
)

// Compile-time interface assertion.
var _ domain.LanguageModel = (*FailoverProvider)(nil)

// FailoverProvider wraps a primary model with fallback models.
// If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.LanguageModel
	fallbacks []domain.LanguageModel
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable model.
func NewFailoverProvider(primary domain.LanguageModel, fallbacks []domain.LanguageModel, logger *slog.Logger) *FailoverProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

func (f *FailoverProvider) candidates() []domain.LanguageModel {
	return append([]domain.LanguageModel{f.primary}, f.fallbacks...)
}

// shouldFailover reports whether another model could succeed where this
// one failed. Invalid requests and caller cancellation fail everywhere.
func shouldFailover(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, domain.ErrInvalidInput)
}

// Generate tries the primary model first, then each fallback on failure.
func (f *FailoverProvider) Generate(ctx context.Context, req domain.CallRequest) (*domain.GenerateResult, error) {
	var errs []error
	for i, m := range f.candidates() {
		resp, err := m.Generate(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover succeeded", "provider", m.Name())
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		if !shouldFailover(ctx, err) {
			return nil, err
		}
		f.logger.Warn("llm generate failed, trying next provider", "provider", m.Name(), "error", err)
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Stream tries each model until one establishes a stream. Once a stream is
// returned there is no switching: a mid-stream error reaches the caller.
func (f *FailoverProvider) Stream(ctx context.Context, req domain.CallRequest) (iter.Seq2[domain.StreamPart, error], error) {
	var errs []error
	for i, m := range f.candidates() {
		seq, err := m.Stream(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("streaming failover succeeded", "provider", m.Name())
			}
			return seq, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		if !shouldFailover(ctx, err) {
			return nil, err
		}
		f.logger.Warn("llm stream failed to start, trying next provider", "provider", m.Name(), "error", err)
	}
	return nil, fmt.Errorf("all streaming providers failed: %w", errors.Join(errs...))
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}
