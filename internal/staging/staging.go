package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store persists raw fetch snapshots and unresolved references in Postgres
// for operator inspection and replay. Entirely optional: a nil *Store is a
// valid no-op store, and every run works without one.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	source      TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	payload     JSONB NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fetch_snapshots_run ON fetch_snapshots(run_id);
CREATE INDEX IF NOT EXISTS idx_fetch_snapshots_key ON fetch_snapshots(source, natural_key);

CREATE TABLE IF NOT EXISTS unresolved_references (
	id         BIGSERIAL PRIMARY KEY,
	source_key TEXT NOT NULL,
	target_key TEXT NOT NULL,
	seen_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_unresolved_target ON unresolved_references(target_key);
`

// Connect opens the staging database and ensures the schema. An empty DSN
// returns (nil, nil): staging disabled.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to staging database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure staging schema: %w", err)
	}

	logger := slog.Default().With("component", "staging")
	logger.Info("staging store connected")
	return &Store{db: db, logger: logger}, nil
}

// Enabled reports whether a staging store is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Close()
}

// RecordSnapshot stores one fetched record as JSON under its natural key.
func (s *Store) RecordSnapshot(ctx context.Context, runID, source, naturalKey string, payload any) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for %s: %w", naturalKey, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fetch_snapshots (run_id, source, natural_key, payload) VALUES ($1, $2, $3, $4)`,
		runID, source, naturalKey, data)
	if err != nil {
		return fmt.Errorf("failed to record snapshot for %s: %w", naturalKey, err)
	}
	return nil
}

// RecordUnresolved stores a reference whose target key was absent from the
// graph. Satisfies the cross-reference run's unresolved sink.
func (s *Store) RecordUnresolved(ctx context.Context, sourceKey, targetKey string) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unresolved_references (source_key, target_key) VALUES ($1, $2)`,
		sourceKey, targetKey)
	if err != nil {
		return fmt.Errorf("failed to record unresolved reference %s: %w", targetKey, err)
	}
	return nil
}

// UnresolvedCount is one distinct unresolved target with its sighting count.
type UnresolvedCount struct {
	TargetKey string    `db:"target_key"`
	Count     int       `db:"count"`
	LastSeen  time.Time `db:"last_seen"`
}

// TopUnresolved returns the most frequently sighted unresolved targets, for
// the status command.
func (s *Store) TopUnresolved(ctx context.Context, limit int) ([]UnresolvedCount, error) {
	if !s.Enabled() {
		return nil, nil
	}
	var out []UnresolvedCount
	err := s.db.SelectContext(ctx, &out,
		`SELECT target_key, count(*) AS count, max(seen_at) AS last_seen
		 FROM unresolved_references
		 GROUP BY target_key
		 ORDER BY count DESC, target_key
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved references: %w", err)
	}
	return out, nil
}

// PruneSnapshots drops snapshot rows older than the cutoff, returning the
// number removed. Called by the cleanup run so staging does not grow forever.
func (s *Store) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fetch_snapshots WHERE fetched_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
