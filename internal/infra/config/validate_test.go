package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateProviderNameEmpty(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.Name = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "provider.name must not be empty")
}

func TestValidateProviderModelEmpty(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.Model = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "provider.model must not be empty")
}

func TestValidateProviderNoKeySource(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.APIKey = ""
	cfg.Provider.APIKeyEnv = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "one of api_key or api_key_env is required")
}

func TestValidateProviderNegativeTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.ConnTimeout = -time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "provider.conn_timeout must be >= 0")
}

func TestValidateRetryNegativeMaxRetries(t *testing.T) {
	cfg := Defaults()
	cfg.Retry.MaxRetries = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "retry.max_retries must be >= 0")
}

func TestValidateRetryZeroBaseDelay(t *testing.T) {
	cfg := Defaults()
	cfg.Retry.BaseDelay = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "retry.base_delay must be > 0")
}

func TestValidateRetryMultiplierBelowOne(t *testing.T) {
	cfg := Defaults()
	cfg.Retry.Multiplier = 0.5
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "retry.multiplier must be >= 1")
}

func TestValidateRetryMaxBelowBase(t *testing.T) {
	cfg := Defaults()
	cfg.Retry.BaseDelay = 5 * time.Second
	cfg.Retry.MaxDelay = time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "retry.max_delay must be >= retry.base_delay")
}

func TestValidateStreamZeroBuffer(t *testing.T) {
	cfg := Defaults()
	cfg.Stream.MaxBuffer = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "stream.max_buffer must be > 0")
}

func TestValidateRateLimitThresholdRange(t *testing.T) {
	cfg := Defaults()
	cfg.RateLimit.ThresholdPercent = 140
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "rate_limit.threshold_percent must be between 0 and 100")

	cfg = Defaults()
	cfg.RateLimit.ThresholdPercent = -5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for negative threshold")
	}
}

func TestValidateRateLimitDelayOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.RateLimit.MinRetryDelay = 10 * time.Second
	cfg.RateLimit.MaxRetryDelay = time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "rate_limit.max_retry_delay must be >= rate_limit.min_retry_delay")
}

func TestValidateRateLimitZeroHistory(t *testing.T) {
	cfg := Defaults()
	cfg.RateLimit.HistoryLimit = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "rate_limit.history_limit must be > 0")
}

func TestValidateUsageZeroHistory(t *testing.T) {
	cfg := Defaults()
	cfg.Usage.HistoryLimit = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "usage.history_limit must be > 0")
}

func TestValidateUsageNegativeMaxAge(t *testing.T) {
	cfg := Defaults()
	cfg.Usage.HistoryMaxAge = -time.Hour
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "usage.history_max_age must be >= 0")
}

func TestValidatePacingNegativeRPS(t *testing.T) {
	cfg := Defaults()
	cfg.Pacing.RPS = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "pacing.rps must be >= 0")
}

func TestValidatePacingBurstRequiredWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Pacing.RPS = 2
	cfg.Pacing.Burst = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "pacing.burst must be >= 1 when pacing is enabled")
}

func TestValidatePacingDisabledSkipsBurst(t *testing.T) {
	cfg := Defaults()
	cfg.Pacing.RPS = 0
	cfg.Pacing.Burst = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled pacing should skip burst check: %v", err)
	}
}

func TestValidateBreakerDisabledSkipsChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Breaker.Enabled = false
	cfg.Breaker.Timeout = -time.Second
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled breaker should skip checks: %v", err)
	}
}

func TestValidateBreakerNegativeTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Breaker.Enabled = true
	cfg.Breaker.Timeout = -time.Second
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "breaker.timeout must be >= 0")
}

func TestValidateLoggerBadLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "verbose"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `logger.level "verbose" is invalid`)
}

func TestValidateLoggerBadFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Format = "xml"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `logger.format "xml" is invalid`)
}

func TestValidateTracerDisabledSkipsExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Enabled = false
	cfg.Tracer.Exporter = "bogus"
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled tracer should skip exporter check: %v", err)
	}
}

func TestValidateTracerBadExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Enabled = true
	cfg.Tracer.Exporter = "jaeger"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), `tracer.exporter "jaeger" is invalid`)
}

func TestValidationErrorFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.Name = ""
	cfg.Retry.MaxRetries = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}

	msg := err.Error()
	if !strings.HasPrefix(msg, "config validation failed:") {
		t.Errorf("message should lead with the failure banner, got %q", msg)
	}
	assertContains(t, msg, "provider.name")
	assertContains(t, msg, "retry.max_retries")
	if !strings.Contains(msg, "\n  - ") {
		t.Errorf("errors should be listed one per line, got %q", msg)
	}
}

func TestValidationErrorHasErrors(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Error("empty ValidationError should report no errors")
	}
	ve.Add("field %s broken", "x")
	if !ve.HasErrors() {
		t.Error("HasErrors should be true after Add")
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
