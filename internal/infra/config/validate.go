package config

import (
	"fmt"
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
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError when one or more problems are found, allowing callers
// to inspect all issues at once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateProvider(cfg, ve)
	validateRetry(cfg, ve)
	validateStream(cfg, ve)
	validateRateLimit(cfg, ve)
	validateUsage(cfg, ve)
	validatePacing(cfg, ve)
	validateBreaker(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateProvider(cfg *Config, ve *ValidationError) {
	p := cfg.Provider
	if p.Name == "" {
		ve.Add("provider.name must not be empty")
	}
	if p.Model == "" {
		ve.Add("provider.model must not be empty")
	}
	if p.APIKey == "" && p.APIKeyEnv == "" {
		ve.Add("provider: one of api_key or api_key_env is required (or set RELAYAI_PROVIDER_API_KEY)")
	}
	if p.ConnTimeout < 0 {
		ve.Add("provider.conn_timeout must be >= 0")
	}
	if p.RespTimeout < 0 {
		ve.Add("provider.resp_timeout must be >= 0")
	}
	if p.Pool.MaxIdleConns < 0 {
		ve.Add("provider.pool.max_idle_conns must be >= 0")
	}
	if p.Pool.MaxIdleConnsPerHost < 0 {
		ve.Add("provider.pool.max_idle_conns_per_host must be >= 0")
	}
	if p.Pool.MaxConnsPerHost < 0 {
		ve.Add("provider.pool.max_conns_per_host must be >= 0")
	}
}

func validateRetry(cfg *Config, ve *ValidationError) {
	r := cfg.Retry
	if r.MaxRetries < 0 {
		ve.Add("retry.max_retries must be >= 0")
	}
	if r.BaseDelay <= 0 {
		ve.Add("retry.base_delay must be > 0")
	}
	if r.Multiplier < 1 {
		ve.Add("retry.multiplier must be >= 1")
	}
	if r.MaxDelay < r.BaseDelay {
		ve.Add("retry.max_delay must be >= retry.base_delay")
	}
}

func validateStream(cfg *Config, ve *ValidationError) {
	s := cfg.Stream
	if s.MaxBuffer <= 0 {
		ve.Add("stream.max_buffer must be > 0")
	}
}

func validateRateLimit(cfg *Config, ve *ValidationError) {
	rl := cfg.RateLimit
	if rl.ThresholdPercent < 0 || rl.ThresholdPercent > 100 {
		ve.Add("rate_limit.threshold_percent must be between 0 and 100")
	}
	if rl.MinRetryDelay <= 0 {
		ve.Add("rate_limit.min_retry_delay must be > 0")
	}
	if rl.MaxRetryDelay < rl.MinRetryDelay {
		ve.Add("rate_limit.max_retry_delay must be >= rate_limit.min_retry_delay")
	}
	if rl.HistoryLimit <= 0 {
		ve.Add("rate_limit.history_limit must be > 0")
	}
}

func validateUsage(cfg *Config, ve *ValidationError) {
	u := cfg.Usage
	if u.HistoryLimit <= 0 {
		ve.Add("usage.history_limit must be > 0")
	}
	if u.HistoryMaxAge < 0 {
		ve.Add("usage.history_max_age must be >= 0")
	}
}

func validatePacing(cfg *Config, ve *ValidationError) {
	p := cfg.Pacing
	if p.RPS < 0 {
		ve.Add("pacing.rps must be >= 0")
	}
	if p.RPS > 0 && p.Burst < 1 {
		ve.Add("pacing.burst must be >= 1 when pacing is enabled")
	}
}

func validateBreaker(cfg *Config, ve *ValidationError) {
	b := cfg.Breaker
	if !b.Enabled {
		return
	}
	if b.Timeout < 0 {
		ve.Add("breaker.timeout must be >= 0")
	}
	if b.Interval < 0 {
		ve.Add("breaker.interval must be >= 0")
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"":      true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
	"":     true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[cfg.Logger.Level] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validTracerExporters = map[string]bool{
	"noop":   true,
	"stdout": true,
	"":       true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	if !validTracerExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
