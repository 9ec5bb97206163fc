package usecase

import (
	"time"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

// TokenHistoryEntry is one recorded turn of token usage.
type TokenHistoryEntry struct {
	Timestamp time.Time
	Usage     domain.TokenUsage
	TurnID    string // empty when the caller supplied none
}

// RangeUsage is the summed usage over a slice of history.
type RangeUsage struct {
	Usage   domain.TokenUsage
	Entries int
}

// EfficiencyMetrics derives quality indicators from the running totals.
// Each metric is 0 when its denominator is 0.
type EfficiencyMetrics struct {
	CacheHitRate     float64 // cached / (input + cached) * 100
	InputOutputRatio float64
	TokensPerTurn    float64
}

// TokenUsageTracker aggregates per-turn token usage into running totals and
// a bounded history. Totals take the reported numbers at face value; an
// inconsistent server-supplied total_tokens is aggregated, not corrected.
// Single-owner state; callers sharing one tracker must serialize access.
type TokenUsageTracker struct {
	cfg     config.UsageConfig
	family  domain.ModelFamily
	total   domain.TokenUsage
	last    domain.TokenUsage
	turns   int
	history []TokenHistoryEntry
}

// NewTokenUsageTracker creates a tracker budgeted for the given model
// family. Zero-valued config fields fall back to defaults.
func NewTokenUsageTracker(cfg config.UsageConfig, family domain.ModelFamily) *TokenUsageTracker {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	return &TokenUsageTracker{cfg: cfg, family: family}
}

// Update folds one turn's usage into the running totals and history.
// Records carrying a negative count are rejected untouched.
func (t *TokenUsageTracker) Update(usage domain.TokenUsage, turnID string) error {
	if err := usage.Validate(); err != nil {
		return err
	}
	t.total = t.total.Add(usage)
	t.last = usage
	t.turns++
	t.history = append(t.history, TokenHistoryEntry{
		Timestamp: time.Now(),
		Usage:     usage,
		TurnID:    turnID,
	})
	t.trimHistory()
	return nil
}

// trimHistory drops entries past the age bound, then past the count bound,
// oldest first.
func (t *TokenUsageTracker) trimHistory() {
	if t.cfg.HistoryMaxAge > 0 {
		cutoff := time.Now().Add(-t.cfg.HistoryMaxAge)
		idx := 0
		for idx < len(t.history) && t.history[idx].Timestamp.Before(cutoff) {
			idx++
		}
		t.history = t.history[idx:]
	}
	if len(t.history) > t.cfg.HistoryLimit {
		t.history = t.history[len(t.history)-t.cfg.HistoryLimit:]
	}
}

// Info returns the running totals together with the model budget.
func (t *TokenUsageTracker) Info() domain.TokenUsageInfo {
	return domain.TokenUsageInfo{
		TotalTokenUsage:       t.total,
		LastTokenUsage:        t.last,
		ModelContextWindow:    t.family.ContextWindow,
		AutoCompactTokenLimit: t.family.AutoCompactTokenLimit,
	}
}

// Family returns the model family the tracker is budgeted for.
func (t *TokenUsageTracker) Family() domain.ModelFamily {
	return t.family
}

// SetFamily switches the budget to a different model family. Aggregated
// history is preserved; only window and compaction bounds change.
func (t *TokenUsageTracker) SetFamily(family domain.ModelFamily) {
	t.family = family
}

// ShouldCompact reports whether accumulated usage crossed the model's
// auto-compact limit. Always false when the family has no limit.
func (t *TokenUsageTracker) ShouldCompact() bool {
	limit := t.family.AutoCompactTokenLimit
	return limit > 0 && t.total.TotalTokens > limit
}

// UsagePercentage reports total tokens as a share of the context window,
// or 0 when the window is unset.
func (t *TokenUsageTracker) UsagePercentage() float64 {
	if t.family.ContextWindow <= 0 {
		return 0
	}
	return float64(t.total.TotalTokens) / float64(t.family.ContextWindow) * 100
}

// UsageForRange sums history entries with from <= timestamp <= to.
func (t *TokenUsageTracker) UsageForRange(from, to time.Time) RangeUsage {
	var out RangeUsage
	for _, e := range t.history {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		out.Usage = out.Usage.Add(e.Usage)
		out.Entries++
	}
	return out
}

// UsageForLastMinutes sums history entries from the trailing window.
func (t *TokenUsageTracker) UsageForLastMinutes(minutes int) RangeUsage {
	now := time.Now()
	return t.UsageForRange(now.Add(-time.Duration(minutes)*time.Minute), now)
}

// UsageForLastTurns sums the most recent n history entries.
func (t *TokenUsageTracker) UsageForLastTurns(n int) RangeUsage {
	if n <= 0 {
		return RangeUsage{}
	}
	start := len(t.history) - n
	if start < 0 {
		start = 0
	}
	var out RangeUsage
	for _, e := range t.history[start:] {
		out.Usage = out.Usage.Add(e.Usage)
		out.Entries++
	}
	return out
}

// Efficiency derives cache and throughput metrics from the totals.
func (t *TokenUsageTracker) Efficiency() EfficiencyMetrics {
	var m EfficiencyMetrics
	if denom := t.total.InputTokens + t.total.CachedInputTokens; denom > 0 {
		m.CacheHitRate = float64(t.total.CachedInputTokens) / float64(denom) * 100
	}
	if t.total.OutputTokens > 0 {
		m.InputOutputRatio = float64(t.total.InputTokens) / float64(t.total.OutputTokens)
	}
	if t.turns > 0 {
		m.TokensPerTurn = float64(t.total.TotalTokens) / float64(t.turns)
	}
	return m
}

// History returns a copy of the recorded entries, oldest first.
func (t *TokenUsageTracker) History() []TokenHistoryEntry {
	out := make([]TokenHistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}
