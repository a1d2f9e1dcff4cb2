// Package postgres implements the event-log repository on PostgreSQL via
// pgx. It is an alternative to the SQLite store for deployments that share
// the event log between devices.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS dose_events (
	id          TEXT PRIMARY KEY,
	due_at      TIMESTAMPTZ NOT NULL,
	group_label TEXT NOT NULL,
	status      TEXT NOT NULL,
	acted_at    TIMESTAMPTZ,
	schedule_id TEXT NOT NULL,
	dose_items  JSONB NOT NULL,
	annotations JSONB,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dose_events_identity ON dose_events (due_at, group_label);
CREATE INDEX IF NOT EXISTS idx_dose_events_due_at ON dose_events (due_at);
`

// DB wraps the pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool against the provided DSN.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ready verifies the connection is usable.
func (db *DB) Ready(ctx context.Context) error {
	var one int
	return db.Pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Migrate applies the embedded event-log schema.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}
