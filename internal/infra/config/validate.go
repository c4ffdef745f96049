package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"openrouter": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, openrouter)", i, p.Type)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d] (%s): base_url %q is not an absolute URL", i, p.Name, p.BaseURL)
			}
		}
		if p.ConnTimeout < 0 || p.RespTimeout < 0 {
			ve.Add("llm.providers[%d] (%s): timeouts must be >= 0", i, p.Name)
		}
		if p.MaxFrameBytes < 0 {
			ve.Add("llm.providers[%d] (%s): max_frame_bytes must be >= 0", i, p.Name)
		}
		for k := range p.ExtraBody {
			if reservedBodyKeys[k] {
				ve.Add("llm.providers[%d] (%s): extra_body must not override %q", i, p.Name, k)
			}
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
	for pref, name := range cfg.LLM.ModelRouting {
		if !seen[name] {
			ve.Add("llm.model_routing[%s]: unknown provider %q", pref, name)
		}
	}

	rl := cfg.LLM.RateLimit
	if rl.Enabled && rl.RequestsPerMinute <= 0 {
		ve.Add("llm.rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
	}
	if rl.Burst < 0 {
		ve.Add("llm.rate_limit.burst must be >= 0")
	}
}

// reservedBodyKeys are request fields extra_body may not replace.
var reservedBodyKeys = map[string]bool{
	"model":    true,
	"messages": true,
	"stream":   true,
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (want: text, json)", f)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	if e := cfg.Tracer.Exporter; e != "noop" && e != "stdout" {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", e)
	}
}
