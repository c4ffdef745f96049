package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Includes []string     `yaml:"includes,omitempty"`
	LLM      LLMConfig    `yaml:"llm"`
	Logger   LoggerConfig `yaml:"logger"`
	Tracer   TracerConfig `yaml:"tracer"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	ModelRouting    map[string]string    `yaml:"model_routing,omitempty"` // preference → provider name, e.g. "fast" → "groq"
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig paces outgoing model calls per provider.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single OpenAI-compatible endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`

	// Headers are sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`
	// ExtraBody keys are merged into the top level of the request body.
	ExtraBody map[string]any `yaml:"extra_body,omitempty"`
	// IncludeUsage requests a trailing usage chunk on streams. Nil means true.
	IncludeUsage *bool `yaml:"include_usage,omitempty"`
	// MaxFrameBytes bounds a single SSE line. Zero means the built-in default.
	MaxFrameBytes int `yaml:"max_frame_bytes,omitempty"`

	// OpenRouter attribution headers.
	SiteURL string `yaml:"site_url,omitempty"`
	AppName string `yaml:"app_name,omitempty"`
}

// UsageRequested reports whether stream_options.include_usage is sent.
func (p ProviderConfig) UsageRequested() bool {
	return p.IncludeUsage == nil || *p.IncludeUsage
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				Burst:             5,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: the main file takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("CHATSTREAM_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps CHATSTREAM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATSTREAM_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("CHATSTREAM_LLM_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.RateLimit.Enabled = n > 0
			cfg.LLM.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("CHATSTREAM_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHATSTREAM_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CHATSTREAM_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("CHATSTREAM_TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHATSTREAM_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Per-provider overrides: CHATSTREAM_LLM_PROVIDER_<NAME>_{API_KEY,BASE_URL,MODEL}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		prefix := "CHATSTREAM_LLM_PROVIDER_" + envName(p.Name) + "_"
		if v := os.Getenv(prefix + "API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := os.Getenv(prefix + "BASE_URL"); v != "" {
			p.BaseURL = v
		}
		if v := os.Getenv(prefix + "MODEL"); v != "" {
			p.Model = v
		}
	}
}

// envName upper-cases a provider name and replaces characters that are not
// valid in environment variable names.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// decryptSecrets finds "enc:..." values in provider secrets and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if strings.HasPrefix(p.APIKey, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(p.APIKey, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", p.Name, err)
			}
			p.APIKey = decrypted
		}
		for k, v := range p.Headers {
			if !strings.HasPrefix(v, "enc:") {
				continue
			}
			decrypted, err := DecryptValue(strings.TrimPrefix(v, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s header %s: %w", p.Name, k, err)
			}
			p.Headers[k] = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files that are group- or world-writable.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
