package usecase

import (
	"log/slog"
	"net/http"
	"time"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

// RateLimitHistoryEntry pairs an advisory snapshot with when it was seen.
type RateLimitHistoryEntry struct {
	Timestamp time.Time
	Snapshot  domain.RateLimitSnapshot
}

// RateLimitSummary condenses the current quota picture for display and
// pacing decisions.
type RateLimitSummary struct {
	HasLimits        bool
	IsApproaching    bool
	MostRestrictive  float64 // highest used_percent across windows
	NextResetSeconds int64   // 0 when the server gave no reset hint
}

// RateLimitManager keeps the advisory quota picture across requests and
// answers whether a retry is worth issuing and how long to wait. It is
// single-owner state; callers sharing one manager must serialize access.
type RateLimitManager struct {
	cfg     config.RateLimitConfig
	logger  *slog.Logger
	current *domain.RateLimitSnapshot
	history []RateLimitHistoryEntry
}

// NewRateLimitManager creates a manager. Zero-valued config fields fall
// back to defaults.
func NewRateLimitManager(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitManager {
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = 80
	}
	if cfg.MinRetryDelay <= 0 {
		cfg.MinRetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitManager{cfg: cfg, logger: logger}
}

// UpdateFromHeaders parses the advisory headers of one response and records
// the snapshot. Returns nil when the response carried no advisory headers.
func (m *RateLimitManager) UpdateFromHeaders(h http.Header) *domain.RateLimitSnapshot {
	snapshot := domain.ParseRateLimitSnapshot(h)
	if snapshot == nil {
		return nil
	}
	m.Record(*snapshot)
	return snapshot
}

// Record stores a snapshot observed elsewhere, such as a stream event.
func (m *RateLimitManager) Record(snapshot domain.RateLimitSnapshot) {
	m.current = &snapshot
	m.history = append(m.history, RateLimitHistoryEntry{Timestamp: time.Now(), Snapshot: snapshot})
	if drop := len(m.history) - m.cfg.HistoryLimit; drop > 0 {
		m.history = m.history[drop:]
	}

	if w := snapshot.MostRestrictive(); w != nil && w.UsedPercent >= m.cfg.ThresholdPercent {
		m.logger.Warn("approaching rate limit",
			"used_percent", w.UsedPercent,
			"threshold", m.cfg.ThresholdPercent,
		)
	}
}

// ShouldRetry reports whether quota headroom makes another attempt worth
// issuing. Without any recorded data the answer is optimistic.
func (m *RateLimitManager) ShouldRetry() bool {
	if m.current == nil {
		return true
	}
	w := m.current.MostRestrictive()
	if w == nil {
		return true
	}
	return w.UsedPercent < m.cfg.ThresholdPercent
}

// RetryDelay computes the wait before retrying a rate-limited request. The
// server's reset hint wins; without one the delay doubles per attempt from
// the configured minimum, capped at the maximum. Both forms carry up to 10%
// jitter.
func (m *RateLimitManager) RetryDelay(attempt int) time.Duration {
	if m.current != nil {
		if w := m.current.MostRestrictive(); w != nil && w.ResetsInSeconds != nil {
			return withJitter(time.Duration(*w.ResetsInSeconds) * time.Second)
		}
	}

	delay := m.cfg.MinRetryDelay
	for i := 0; i < attempt && delay < m.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > m.cfg.MaxRetryDelay {
		delay = m.cfg.MaxRetryDelay
	}
	return withJitter(delay)
}

// Summary returns the condensed quota view.
func (m *RateLimitManager) Summary() RateLimitSummary {
	if m.current == nil {
		return RateLimitSummary{}
	}
	w := m.current.MostRestrictive()
	if w == nil {
		return RateLimitSummary{}
	}
	s := RateLimitSummary{
		HasLimits:       true,
		IsApproaching:   w.UsedPercent >= m.cfg.ThresholdPercent,
		MostRestrictive: w.UsedPercent,
	}
	if w.ResetsInSeconds != nil {
		s.NextResetSeconds = *w.ResetsInSeconds
	}
	return s
}

// Current returns the most recent snapshot, or nil before any was recorded.
func (m *RateLimitManager) Current() *domain.RateLimitSnapshot {
	return m.current
}

// History returns a copy of the recorded snapshots, oldest first.
func (m *RateLimitManager) History() []RateLimitHistoryEntry {
	out := make([]RateLimitHistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}
