package usecase

import (
	"net/http"
	"testing"
	"time"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

func i64(v int64) *int64 { return &v }

func newTestRateLimitManager(cfg config.RateLimitConfig) *RateLimitManager {
	return NewRateLimitManager(cfg, newTestLogger())
}

func TestShouldRetryAfterHighUsage(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	m.Record(domain.RateLimitSnapshot{
		Primary: &domain.RateLimitWindow{UsedPercent: 95.0},
	})

	if m.ShouldRetry() {
		t.Error("ShouldRetry() = true after 95% usage, want false")
	}
}

func TestShouldRetryAfterLowUsage(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	m.Record(domain.RateLimitSnapshot{
		Primary: &domain.RateLimitWindow{UsedPercent: 60.0},
	})

	if !m.ShouldRetry() {
		t.Error("ShouldRetry() = false after 60% usage, want true")
	}
}

func TestShouldRetryOptimisticWithoutData(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	if !m.ShouldRetry() {
		t.Error("ShouldRetry() = false with no recorded data, want true")
	}
}

func TestUpdateFromHeadersNoHeaders(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	if got := m.UpdateFromHeaders(http.Header{}); got != nil {
		t.Errorf("UpdateFromHeaders(empty) = %+v, want nil", got)
	}
	if m.Current() != nil {
		t.Error("Current() != nil after empty headers")
	}
	if len(m.History()) != 0 {
		t.Errorf("history has %d entries after empty headers, want 0", len(m.History()))
	}
}

func TestUpdateFromHeadersPrimaryOnly(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	h := http.Header{}
	h.Set("x-codex-primary-used-percent", "75.5")
	h.Set("x-codex-primary-window-minutes", "60")
	h.Set("x-codex-primary-resets-in-seconds", "1800")

	got := m.UpdateFromHeaders(h)
	if got == nil {
		t.Fatal("UpdateFromHeaders returned nil")
	}
	if got.Primary == nil || got.Primary.UsedPercent != 75.5 {
		t.Errorf("Primary = %+v, want used 75.5", got.Primary)
	}
	if got.Primary.WindowMinutes == nil || *got.Primary.WindowMinutes != 60 {
		t.Errorf("WindowMinutes = %v, want 60", got.Primary.WindowMinutes)
	}
	if got.Primary.ResetsInSeconds == nil || *got.Primary.ResetsInSeconds != 1800 {
		t.Errorf("ResetsInSeconds = %v, want 1800", got.Primary.ResetsInSeconds)
	}
	if got.Secondary != nil {
		t.Errorf("Secondary = %+v, want nil", got.Secondary)
	}
	if len(m.History()) != 1 {
		t.Errorf("history has %d entries, want 1", len(m.History()))
	}
}

func TestUpdateFromHeadersBothWindows(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	h := http.Header{}
	h.Set("x-codex-primary-used-percent", "20")
	h.Set("x-codex-secondary-used-percent", "85.2")

	got := m.UpdateFromHeaders(h)
	if got == nil {
		t.Fatal("UpdateFromHeaders returned nil")
	}
	w := got.MostRestrictive()
	if w == nil || w.UsedPercent != 85.2 {
		t.Errorf("MostRestrictive() = %+v, want secondary at 85.2", w)
	}

	s := m.Summary()
	if !s.HasLimits {
		t.Error("Summary().HasLimits = false, want true")
	}
	if !s.IsApproaching {
		t.Error("Summary().IsApproaching = false at 85.2%, want true")
	}
	if s.MostRestrictive != 85.2 {
		t.Errorf("Summary().MostRestrictive = %v, want 85.2", s.MostRestrictive)
	}
}

func TestRetryDelayUsesResetHint(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	m.Record(domain.RateLimitSnapshot{
		Primary: &domain.RateLimitWindow{UsedPercent: 50, ResetsInSeconds: i64(30)},
	})

	d := m.RetryDelay(0)
	if d < 30*time.Second || d > 33*time.Second {
		t.Errorf("RetryDelay(0) = %v, want within [30s, 33s]", d)
	}
}

func TestRetryDelayExponentialWithoutHint(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{
		MinRetryDelay: time.Second,
		MaxRetryDelay: time.Minute,
	})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tt := range cases {
		d := m.RetryDelay(tt.attempt)
		upper := tt.want + tt.want/10
		if d < tt.want || d > upper {
			t.Errorf("RetryDelay(%d) = %v, want within [%v, %v]", tt.attempt, d, tt.want, upper)
		}
	}

	if d := m.RetryDelay(10); d < time.Minute || d > 66*time.Second {
		t.Errorf("RetryDelay(10) = %v, want capped within [1m, 1m6s]", d)
	}
}

func TestRateLimitHistoryBounded(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	for i := 0; i < 60; i++ {
		m.Record(domain.RateLimitSnapshot{
			Primary: &domain.RateLimitWindow{UsedPercent: float64(i)},
		})
	}

	hist := m.History()
	if len(hist) != 50 {
		t.Fatalf("history has %d entries, want 50", len(hist))
	}
	if got := hist[0].Snapshot.Primary.UsedPercent; got != 10 {
		t.Errorf("oldest retained entry = %v, want 10 (FIFO trim)", got)
	}
	if got := hist[len(hist)-1].Snapshot.Primary.UsedPercent; got != 59 {
		t.Errorf("newest entry = %v, want 59", got)
	}
}

func TestSummaryEmpty(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	s := m.Summary()
	if s.HasLimits || s.IsApproaching || s.MostRestrictive != 0 || s.NextResetSeconds != 0 {
		t.Errorf("Summary() = %+v, want zero value before any snapshot", s)
	}
}

func TestSummaryCarriesResetHint(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	m.Record(domain.RateLimitSnapshot{
		Primary: &domain.RateLimitWindow{UsedPercent: 42, ResetsInSeconds: i64(600)},
	})

	s := m.Summary()
	if s.NextResetSeconds != 600 {
		t.Errorf("NextResetSeconds = %d, want 600", s.NextResetSeconds)
	}
	if s.IsApproaching {
		t.Error("IsApproaching = true at 42%, want false")
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	m := newTestRateLimitManager(config.RateLimitConfig{})
	m.Record(domain.RateLimitSnapshot{
		Primary: &domain.RateLimitWindow{UsedPercent: 10},
	})

	hist := m.History()
	hist[0].Snapshot.Primary = &domain.RateLimitWindow{UsedPercent: 99}

	if got := m.History()[0].Snapshot.Primary.UsedPercent; got != 10 {
		t.Errorf("stored history mutated through returned copy: got %v, want 10", got)
	}
}
