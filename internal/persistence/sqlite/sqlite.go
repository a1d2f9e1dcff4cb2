// Package sqlite implements the persistence repositories on SQLite via the
// pure-Go modernc.org driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/example/dose-scheduler/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	id                      TEXT PRIMARY KEY,
	title                   TEXT NOT NULL DEFAULT '',
	times                   TEXT NOT NULL,
	rrule                   TEXT NOT NULL,
	timezone                TEXT NOT NULL DEFAULT '',
	start_at                TEXT NOT NULL,
	end_at                  TEXT,
	lockout_minutes         INTEGER NOT NULL DEFAULT 0,
	snooze_interval_minutes INTEGER NOT NULL DEFAULT 0,
	snooze_max              INTEGER NOT NULL DEFAULT 0,
	created_at              TEXT NOT NULL,
	updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule_dose_items (
	schedule_id   TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	medication_id TEXT NOT NULL,
	quantity      INTEGER NOT NULL CHECK (quantity > 0),
	PRIMARY KEY (schedule_id, position)
);

CREATE TABLE IF NOT EXISTS medications (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	max_daily_dose INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dose_events (
	id          TEXT PRIMARY KEY,
	due_at      TEXT NOT NULL,
	group_label TEXT NOT NULL,
	status      TEXT NOT NULL,
	acted_at    TEXT,
	schedule_id TEXT NOT NULL,
	dose_items  TEXT NOT NULL,
	annotations TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_dose_events_identity ON dose_events (due_at, group_label);
CREATE INDEX IF NOT EXISTS idx_dose_events_due_at ON dose_events (due_at);
`

// Store owns the SQLite connection shared by the repositories.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database identified by dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}
	// The driver serializes access per connection; a single connection keeps
	// transactions and the in-memory DSN well defined.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent so Migrate
// is safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// WithTransaction runs fn inside a transaction, rolling back on error.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

// mapError translates driver errors into the persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return persistence.ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}
