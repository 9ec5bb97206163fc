package domain

import (
	"context"
	"time"
)

// UsageRecord is one persisted token-usage entry for a completed turn.
type UsageRecord struct {
	ID        string     `json:"id"`
	TurnID    string     `json:"turn_id"`
	Timestamp time.Time  `json:"timestamp"`
	Usage     TokenUsage `json:"usage"`
}

// UsageLedger provides durable storage for per-turn usage records. The
// in-memory tracker remains the source of truth for compaction decisions;
// the ledger only records history.
type UsageLedger interface {
	Append(ctx context.Context, rec UsageRecord) error
	// SumRange returns the elementwise sum and record count for records
	// with from <= timestamp <= to.
	SumRange(ctx context.Context, from, to time.Time) (TokenUsage, int, error)
	// Recent returns up to n records, newest first.
	Recent(ctx context.Context, n int) ([]UsageRecord, error)
	Close() error
}
