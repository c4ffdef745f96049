package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// Compile-time interface assertion.
var _ domain.LanguageModel = (*CircuitBreakerProvider)(nil)

// CircuitBreakerProvider wraps a LanguageModel with circuit breaker protection.
// When the wrapped model fails repeatedly, the circuit opens and subsequent
// calls fail fast without reaching the upstream.
type CircuitBreakerProvider struct {
	inner   domain.LanguageModel
	breaker *gobreaker.CircuitBreaker[*domain.GenerateResult]
	logger  *slog.Logger
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker.
// Zero-valued settings fall back to defaults.
func NewCircuitBreakerProvider(inner domain.LanguageModel, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*domain.GenerateResult](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller mistakes, cancellations, expired caller deadlines and
		// local rate limiting say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			var ce *callerDoneError
			return err == nil ||
				errors.As(err, &ce) ||
				errors.Is(err, errRateLimitWait) ||
				errors.Is(err, domain.ErrInvalidInput) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Generate implements domain.LanguageModel. Calls are routed through the breaker.
func (p *CircuitBreakerProvider) Generate(ctx context.Context, req domain.CallRequest) (*domain.GenerateResult, error) {
	resp, err := p.breaker.Execute(func() (*domain.GenerateResult, error) {
		resp, err := p.inner.Generate(ctx, req)
		return resp, markCallerDone(ctx, err)
	})
	if err != nil {
		return nil, p.wrapBreakerErr(err, domain.ErrProviderError)
	}
	return resp, nil
}

// Stream implements domain.LanguageModel. Only connection establishment
// counts towards the breaker; errors while reading the body do not.
func (p *CircuitBreakerProvider) Stream(ctx context.Context, req domain.CallRequest) (iter.Seq2[domain.StreamPart, error], error) {
	var seq iter.Seq2[domain.StreamPart, error]
	_, err := p.breaker.Execute(func() (*domain.GenerateResult, error) {
		var streamErr error
		seq, streamErr = p.inner.Stream(ctx, req)
		return nil, markCallerDone(ctx, streamErr)
	})
	if err != nil {
		return nil, p.wrapBreakerErr(err, domain.ErrStreamUnavailable)
	}
	return seq, nil
}

// wrapBreakerErr reports a rejected call as unavailable with the sentinel
// of the calling operation, and strips the caller-done marker.
func (p *CircuitBreakerProvider) wrapBreakerErr(err, unavailable error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: provider %q circuit open: %w", unavailable, p.inner.Name(), err)
	}
	var ce *callerDoneError
	if errors.As(err, &ce) {
		return ce.err
	}
	return err
}

// callerDoneError marks a failure that happened after the caller's context
// ended, so it is not held against the upstream.
type callerDoneError struct{ err error }

func (e *callerDoneError) Error() string { return e.err.Error() }
func (e *callerDoneError) Unwrap() error { return e.err }

func markCallerDone(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return &callerDoneError{err: err}
	}
	return err
}

// Name implements domain.LanguageModel.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (p *CircuitBreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

// --- Connection Pooling ---

// Default connection pool settings: few hosts, long-lived connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// Default provider timeouts.
const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling.
// respTimeout bounds the wait for response headers only, so long streams
// are not cut off.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          positiveOr(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   positiveOr(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       positiveOr(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       positiveOr(pool.IdleConnTimeout, defaultIdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// NewHTTPClient creates an *http.Client with a pooled transport. There is
// no overall client timeout; past the headers, the request context bounds
// the body.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	return &http.Client{
		Transport: NewPooledTransport(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool),
	}
}
