package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Retry     RetryConfig     `yaml:"retry"`
	Stream    StreamConfig    `yaml:"stream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Usage     UsageConfig     `yaml:"usage"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// ProviderConfig holds settings for the inference endpoint.
type ProviderConfig struct {
	Name         string            `yaml:"name"`
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"`
	APIKeyEnv    string            `yaml:"api_key_env"`
	Organization string            `yaml:"organization,omitempty"`
	Beta         string            `yaml:"beta,omitempty"`
	Model        string            `yaml:"model"`
	ConnTimeout  time.Duration     `yaml:"conn_timeout"`
	RespTimeout  time.Duration     `yaml:"resp_timeout"`
	Pool         PoolConfig        `yaml:"pool"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// RetryConfig holds request retry policy settings.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// StreamConfig holds event stream delivery settings.
type StreamConfig struct {
	EventTimeout time.Duration `yaml:"event_timeout"`
	MaxBuffer    int           `yaml:"max_buffer"`
	Backpressure bool          `yaml:"backpressure"`
}

// RateLimitConfig holds advisory rate-limit policy settings.
type RateLimitConfig struct {
	ThresholdPercent float64       `yaml:"threshold_percent"`
	MinRetryDelay    time.Duration `yaml:"min_retry_delay"`
	MaxRetryDelay    time.Duration `yaml:"max_retry_delay"`
	HistoryLimit     int           `yaml:"history_limit"`
}

// UsageConfig holds token usage tracking settings.
type UsageConfig struct {
	HistoryLimit  int           `yaml:"history_limit"`
	HistoryMaxAge time.Duration `yaml:"history_max_age"`
	// LedgerPath points at the SQLite usage ledger. Empty disables
	// persistence; in-memory tracking still works.
	LedgerPath string `yaml:"ledger_path"`
}

// PacingConfig holds client-side request pacing settings. RPS of zero
// disables pacing entirely.
type PacingConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BreakerConfig holds circuit breaker settings for the wire client.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
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

// defaultDataDir returns the persistent data directory under
// $HOME/.relayai/data, falling back to "./data" when $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".relayai", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        "openai",
			APIKeyEnv:   "OPENAI_API_KEY",
			Model:       "gpt-5",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
			Multiplier: 2.0,
			MaxDelay:   10 * time.Second,
		},
		Stream: StreamConfig{
			EventTimeout: 30 * time.Second,
			MaxBuffer:    64,
			Backpressure: true,
		},
		RateLimit: RateLimitConfig{
			ThresholdPercent: 80,
			MinRetryDelay:    time.Second,
			MaxRetryDelay:    60 * time.Second,
			HistoryLimit:     50,
		},
		Usage: UsageConfig{
			HistoryLimit:  500,
			HistoryMaxAge: 24 * time.Hour,
			LedgerPath:    filepath.Join(defaultDataDir(), "usage.db"),
		},
		Pacing: PacingConfig{
			RPS:   0,
			Burst: 1,
		},
		Breaker: BreakerConfig{
			Enabled:     false,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
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

// Load reads a YAML config file, expands ${ENV} references, applies env
// var overrides, and decrypts secrets. A missing file yields the defaults.
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

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Merge any included files, then re-unmarshal the main file so its
	// values take precedence over the includes.
	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	expandEnvRefs(cfg)
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("RELAYAI_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvRefs resolves ${VAR} references in string-valued fields that
// commonly carry secrets or host-specific paths.
func expandEnvRefs(cfg *Config) {
	expand := func(s string) string {
		return os.Expand(s, func(key string) string {
			if v, ok := os.LookupEnv(key); ok {
				return v
			}
			// Unknown references stay literal so they remain visible.
			return "${" + key + "}"
		})
	}
	cfg.Provider.BaseURL = expand(cfg.Provider.BaseURL)
	cfg.Provider.APIKey = expand(cfg.Provider.APIKey)
	cfg.Provider.Organization = expand(cfg.Provider.Organization)
	cfg.Usage.LedgerPath = expand(cfg.Usage.LedgerPath)
	cfg.Logger.Output = expand(cfg.Logger.Output)
	for key, value := range cfg.Provider.Headers {
		cfg.Provider.Headers[key] = expand(value)
	}
}

// ApplyEnvOverrides maps RELAYAI_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAYAI_PROVIDER_NAME"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("RELAYAI_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("RELAYAI_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("RELAYAI_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("RELAYAI_PROVIDER_ORGANIZATION"); v != "" {
		cfg.Provider.Organization = v
	}
	if v := os.Getenv("RELAYAI_RETRY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("RELAYAI_STREAM_EVENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stream.EventTimeout = d
		}
	}
	if v := os.Getenv("RELAYAI_USAGE_LEDGER_PATH"); v != "" {
		cfg.Usage.LedgerPath = v
	}
	if v := os.Getenv("RELAYAI_PACING_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Pacing.RPS = f
		}
	}
	if v := os.Getenv("RELAYAI_BREAKER_ENABLED"); v == "true" {
		cfg.Breaker.Enabled = true
	} else if v == "false" {
		cfg.Breaker.Enabled = false
	}
	if v := os.Getenv("RELAYAI_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RELAYAI_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("RELAYAI_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("RELAYAI_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// validatePermissions rejects config files readable or writable beyond
// what an inline API key warrants.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable).
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
