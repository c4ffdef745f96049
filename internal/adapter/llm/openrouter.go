package llm

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterAppName = "chatstream"
)

// Compile-time interface assertion.
var _ domain.LanguageModel = (*OpenRouterProvider)(nil)

// openrouterTransport injects OpenRouter attribution headers (HTTP-Referer
// and X-Title) into every request.
type openrouterTransport struct {
	base    http.RoundTripper
	siteURL string
	appName string
}

func (t *openrouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the original.
	clone := req.Clone(req.Context())
	if t.siteURL != "" {
		clone.Header.Set("HTTP-Referer", t.siteURL)
	}
	clone.Header.Set("X-Title", t.appName)
	return t.base.RoundTrip(clone)
}

// OpenRouterProvider is an OpenAI-compatible provider preset for OpenRouter.
type OpenRouterProvider struct {
	inner *OpenAIProvider
}

// NewOpenRouterProvider creates an OpenRouter provider that delegates to
// OpenAIProvider with a transport adding OpenRouter-specific headers.
func NewOpenRouterProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenRouterProvider {
	client := NewHTTPClient(cfg)
	appName := cfg.AppName
	if appName == "" {
		appName = defaultOpenRouterAppName
	}
	client.Transport = &openrouterTransport{base: client.Transport, siteURL: cfg.SiteURL, appName: appName}

	return &OpenRouterProvider{
		inner: newOpenAIProvider(cfg, client, defaultOpenRouterBaseURL, logger),
	}
}

// Generate implements domain.LanguageModel.
func (p *OpenRouterProvider) Generate(ctx context.Context, req domain.CallRequest) (*domain.GenerateResult, error) {
	return p.inner.Generate(ctx, req)
}

// Stream implements domain.LanguageModel.
func (p *OpenRouterProvider) Stream(ctx context.Context, req domain.CallRequest) (iter.Seq2[domain.StreamPart, error], error) {
	return p.inner.Stream(ctx, req)
}

// Name implements domain.LanguageModel.
func (p *OpenRouterProvider) Name() string { return p.inner.Name() }
