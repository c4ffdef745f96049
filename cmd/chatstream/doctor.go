package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"chatstream/internal/adapter/llm"
	"chatstream/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

func doctorCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the config and reachability of the default provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), configPath(opts))
		},
	}
}

// runDoctor executes all health checks and reports results.
func runDoctor(ctx context.Context, w io.Writer, cfgPath string) error {
	// Some checks work without a config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API keys", Fn: checkAPIKeys},
		{Name: "Connectivity", Fn: checkConnectivity},
	}

	r := lipgloss.NewRenderer(w)
	styles := map[CheckStatus]lipgloss.Style{
		StatusPass: r.NewStyle().Foreground(lipgloss.Color("#5FD75F")).Bold(true),
		StatusWarn: r.NewStyle().Foreground(lipgloss.Color("#FFAF00")).Bold(true),
		StatusFail: r.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true),
	}
	muted := r.NewStyle().Faint(true)

	fmt.Fprintln(w, "chatstream doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(ctx, cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", styles[result.Status].Render("["+string(result.Status)+"]"), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintln(w, muted.Render("      Fix: "+result.Fix))
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

// checkConfigFile reports whether the config file exists and loads.
func checkConfigFile(cfgPath string, cfgErr error) func(context.Context, *config.Config) CheckResult {
	return func(_ context.Context, _ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check the YAML syntax and file permissions (no group/world write)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAPIKeys verifies the configured providers have API keys.
func checkAPIKeys(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no providers configured",
			Fix:     "Add a provider under llm.providers or pass --provider/--key",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}

	switch {
	case len(withKey) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set CHATSTREAM_LLM_PROVIDER_<NAME>_API_KEY",
		}
	case len(withoutKey) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkConnectivity lists models on the default provider.
func checkConnectivity(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	provider := findProvider(cfg, cfg.LLM.DefaultProvider)
	if provider == nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("default provider %q not configured; skipping", cfg.LLM.DefaultProvider),
		}
	}
	if provider.APIKey == "" {
		return CheckResult{Status: StatusWarn, Message: "skipped: no API key for default provider"}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := modelsEndpoint(provider)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	start := time.Now()
	resp, err := llm.NewHTTPClient(*provider).Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check base_url, proxy settings and network access",
		}
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the API key (HTTP %d)", provider.Name, resp.StatusCode),
			Fix:     "Check the API key for the default provider",
		}
	case resp.StatusCode >= 400:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s reachable but %s returned HTTP %d", provider.Name, endpoint, resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// modelsEndpoint returns the model listing URL for the given provider.
func modelsEndpoint(p *config.ProviderConfig) string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/") + "/models"
	}
	if p.Type == "openrouter" {
		return "https://openrouter.ai/api/v1/models"
	}
	return "https://api.openai.com/v1/models"
}
