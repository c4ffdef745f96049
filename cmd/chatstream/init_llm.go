package main

import (
	"fmt"
	"log/slog"

	"chatstream/internal/adapter/llm"
	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/logger"
)

// llmComponents holds the wired language models.
type llmComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LanguageModel
	Router     *llm.PreferenceRouter
}

// initLLM builds every configured provider, wraps each with rate limiting
// and a circuit breaker when enabled, then resolves the default model and
// its failover chain.
func initLLM(cfg *config.Config, log *slog.Logger) (*llmComponents, error) {
	llmLog := logger.Component(log, "llm")

	// 1. Registry
	registry := llm.NewRegistry()

	// 2. Providers, each wrapped independently
	cbCfg := cfg.LLM.CircuitBreaker
	rlCfg := cfg.LLM.RateLimit
	for _, pc := range cfg.LLM.Providers {
		model, err := createLanguageModel(pc, llmLog)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		if rlCfg.Enabled {
			model = llm.NewRateLimitedProvider(model, rlCfg)
		}
		if cbCfg.Enabled {
			model = llm.NewCircuitBreakerProvider(model, cbCfg, llmLog)
		}

		if err := registry.Register(model); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		llmLog.Debug("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}
	if rlCfg.Enabled {
		llmLog.Debug("llm rate limit enabled", "rpm", rlCfg.RequestsPerMinute, "burst", rlCfg.Burst)
	}

	// 3. Default model
	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}

	// 4. Failover
	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		var fallbacks []domain.LanguageModel
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if name == cfg.LLM.DefaultProvider {
				continue
			}
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		if len(fallbacks) > 0 {
			defaultLLM = llm.NewFailoverProvider(defaultLLM, fallbacks, llmLog)
			llmLog.Debug("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
		}
	}

	return &llmComponents{
		Registry:   registry,
		DefaultLLM: defaultLLM,
		Router:     llm.NewPreferenceRouter(cfg.LLM.ModelRouting, registry, defaultLLM),
	}, nil
}

// createLanguageModel constructs the provider for one config entry.
func createLanguageModel(pc config.ProviderConfig, log *slog.Logger) (domain.LanguageModel, error) {
	switch pc.Type {
	case "openai", "":
		return llm.NewOpenAIProvider(pc, log), nil
	case "openrouter":
		return llm.NewOpenRouterProvider(pc, log), nil
	default:
		return nil, domain.NewDomainError("createLanguageModel", domain.ErrInvalidInput,
			fmt.Sprintf("unknown provider type %q", pc.Type))
	}
}
