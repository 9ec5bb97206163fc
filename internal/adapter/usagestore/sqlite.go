// Package usagestore persists per-turn token usage records in SQLite.
package usagestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"relay-ai/internal/domain"
)

// Store implements domain.UsageLedger using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and runs the
// schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}
	return &Store{db: db}, nil
}

// migrate creates the schema if it doesn't exist. Timestamps are stored
// as unix milliseconds so range queries compare integers.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS usage_records (
			id                      TEXT PRIMARY KEY,
			turn_id                 TEXT NOT NULL DEFAULT '',
			recorded_at             INTEGER NOT NULL,
			input_tokens            INTEGER NOT NULL DEFAULT 0,
			cached_input_tokens     INTEGER NOT NULL DEFAULT 0,
			output_tokens           INTEGER NOT NULL DEFAULT 0,
			reasoning_output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens            INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_usage_recorded_at
			ON usage_records(recorded_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(_ context.Context, rec domain.UsageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO usage_records
			(id, turn_id, recorded_at, input_tokens, cached_input_tokens,
			 output_tokens, reasoning_output_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TurnID, rec.Timestamp.UnixMilli(),
		rec.Usage.InputTokens, rec.Usage.CachedInputTokens,
		rec.Usage.OutputTokens, rec.Usage.ReasoningOutputTokens,
		rec.Usage.TotalTokens,
	)
	return err
}

// SumRange totals the counters of records with from <= recorded_at <= to
// and reports how many records matched.
func (s *Store) SumRange(_ context.Context, from, to time.Time) (domain.TokenUsage, int, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(cached_input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(reasoning_output_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		 FROM usage_records
		 WHERE recorded_at >= ? AND recorded_at <= ?`,
		from.UnixMilli(), to.UnixMilli(),
	)
	var sum domain.TokenUsage
	var count int
	err := row.Scan(&count, &sum.InputTokens, &sum.CachedInputTokens,
		&sum.OutputTokens, &sum.ReasoningOutputTokens, &sum.TotalTokens)
	if err != nil {
		return domain.TokenUsage{}, 0, err
	}
	return sum, count, nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(_ context.Context, n int) ([]domain.UsageRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, turn_id, recorded_at, input_tokens, cached_input_tokens,
			output_tokens, reasoning_output_tokens, total_tokens
		 FROM usage_records
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		var ms int64
		err := rows.Scan(&rec.ID, &rec.TurnID, &ms,
			&rec.Usage.InputTokens, &rec.Usage.CachedInputTokens,
			&rec.Usage.OutputTokens, &rec.Usage.ReasoningOutputTokens,
			&rec.Usage.TotalTokens)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(ms).UTC()
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

var _ domain.UsageLedger = (*Store)(nil)
