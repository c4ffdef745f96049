package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/infra/logger"
	"chatstream/internal/infra/tracer"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds the root command flags.
type options struct {
	// ConfigPath points at the YAML config. A missing file means defaults.
	ConfigPath string
	// Provider selects a provider by name and overrides llm.default_provider.
	Provider string
	// Model, APIKey and BaseURL override the selected provider's settings.
	Model   string
	APIKey  string
	BaseURL string
	// Prefer routes through llm.model_routing (e.g. "fast").
	Prefer string
	System string
	// Text prints only text deltas instead of NDJSON events.
	Text     bool
	NoStream bool

	MaxTokens   int
	Temperature float64

	Version bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chatstream: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand wires the cobra command tree.
func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "chatstream [flags] PROMPT",
		Short: "Stream an OpenAI-compatible chat completion as normalized events",
		Long: `chatstream sends PROMPT to an OpenAI-compatible endpoint and prints each
normalized stream event as one JSON line. With no PROMPT, or "-", the prompt
is read from stdin.

CHATSTREAM_* environment variables override config values.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return runRoot(cmd, opts, args)
		},
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Config file path (default: $CHATSTREAM_CONFIG or ./config.yaml)")
	applyFlags(root.Flags(), opts)

	root.AddCommand(replayCommand())
	root.AddCommand(doctorCommand(opts))
	root.AddCommand(encryptCommand())
	return root
}

// applyFlags registers the root command flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.Provider, "provider", "", "Provider name (overrides llm.default_provider)")
	flags.StringVar(&opts.Model, "model", "", "Model name (e.g. gpt-4o-mini)")
	flags.StringVar(&opts.APIKey, "key", "", "API key for the provider")
	flags.StringVar(&opts.BaseURL, "base-url", "", "Base URL of the OpenAI-compatible API")
	flags.StringVar(&opts.Prefer, "prefer", "", "Routing preference from llm.model_routing")
	flags.StringVarP(&opts.System, "system", "s", "", "System prompt")
	flags.BoolVarP(&opts.Text, "text", "t", false, "Print only the generated text")
	flags.BoolVar(&opts.NoStream, "no-stream", false, "Use a single non-streaming request")
	flags.IntVar(&opts.MaxTokens, "max-tokens", 0, "Maximum output tokens (0: provider default)")
	flags.Float64Var(&opts.Temperature, "temperature", 0, "Sampling temperature")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Print the version number")
}

func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	context.AfterFunc(ctx, cancel)

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	components, err := initLLM(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	model, err := components.Router.Route(opts.Prefer)
	if err != nil {
		return err
	}

	req := buildRequest(cmd, opts, prompt)
	out := newEventWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.Text)

	log.Debug("chatstream request", "provider", model.Name(), "stream", !opts.NoStream)

	if opts.NoStream {
		result, err := model.Generate(ctx, req)
		if err != nil {
			return interrupted(ctx, err)
		}
		return out.writeResult(result)
	}

	parts, err := model.Stream(ctx, req)
	if err != nil {
		return interrupted(ctx, err)
	}
	return interrupted(ctx, out.writeStream(parts))
}

// interrupted swallows the error caused by the user pressing Ctrl-C.
func interrupted(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readPrompt joins the positional arguments, or reads stdin when there are
// none or the only argument is "-".
func readPrompt(stdin io.Reader, args []string) (string, error) {
	var prompt string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	} else {
		prompt = strings.Join(args, " ")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("a prompt is required")
	}
	return prompt, nil
}

// buildRequest turns flags and the prompt into a call request. The model is
// left empty so each provider, fallbacks included, uses its own.
func buildRequest(cmd *cobra.Command, opts *options, prompt string) domain.CallRequest {
	var msgs []domain.Message
	if opts.System != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: opts.System})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: prompt})

	req := domain.CallRequest{
		Messages:        msgs,
		MaxOutputTokens: opts.MaxTokens,
	}
	if cmd.Flags().Changed("temperature") {
		t := opts.Temperature
		req.Temperature = &t
	}
	return req
}

// configPath resolves the config file location.
func configPath(opts *options) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	if p := os.Getenv("CHATSTREAM_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// loadConfig loads the config file and layers the command-line overrides on
// top of it.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(configPath(opts))
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, opts)

	if len(cfg.LLM.Providers) == 0 {
		return nil, errors.New("no providers configured: pass --key or write a config file")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides points the config at the provider named by --provider
// (or the default) and overrides its settings. A provider that is not in the
// config is created when a flag names it or CHATSTREAM_LLM_PROVIDER_<NAME>_API_KEY
// is set.
func applyFlagOverrides(cfg *config.Config, opts *options) {
	if opts.Provider != "" {
		cfg.LLM.DefaultProvider = opts.Provider
	}
	name := cfg.LLM.DefaultProvider

	pc := findProvider(cfg, name)
	if pc == nil {
		cfg.LLM.Providers = append(cfg.LLM.Providers, config.ProviderConfig{
			Name: name,
			Type: providerType(name),
		})
		config.ApplyEnvOverrides(cfg)
		cfg.LLM.DefaultProvider = name

		last := len(cfg.LLM.Providers) - 1
		fromFlags := opts.Provider != "" || opts.APIKey != "" || opts.BaseURL != ""
		if !fromFlags && cfg.LLM.Providers[last].APIKey == "" {
			cfg.LLM.Providers = cfg.LLM.Providers[:last]
			return
		}
		pc = &cfg.LLM.Providers[last]
	}

	if opts.Model != "" {
		pc.Model = opts.Model
	}
	if opts.APIKey != "" {
		pc.APIKey = opts.APIKey
	}
	if opts.BaseURL != "" {
		pc.BaseURL = opts.BaseURL
	}
}

func findProvider(cfg *config.Config, name string) *config.ProviderConfig {
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].Name == name {
			return &cfg.LLM.Providers[i]
		}
	}
	return nil
}

// providerType guesses the type of a provider created from flags alone.
func providerType(name string) string {
	if name == "openrouter" {
		return "openrouter"
	}
	return "openai"
}
