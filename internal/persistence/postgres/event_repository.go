package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/persistence"
)

const uniqueViolationCode = "23505"

// EventRepository implements persistence.EventRepository on PostgreSQL. The
// insert is conditional on the (due_at, group_label) unique index, so
// concurrent reconciliation runs racing on the same occurrence resolve to a
// single record.
type EventRepository struct {
	db *DB
}

// NewEventRepository binds a repository to the database.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent inserts a new event record and returns it as stored.
func (r *EventRepository) CreateEvent(ctx context.Context, record dosing.EventRecord) (dosing.EventRecord, error) {
	if record.ID == "" || !record.Status.Valid() {
		return dosing.EventRecord{}, persistence.ErrConstraintViolation
	}
	items, err := json.Marshal(record.Details.DoseItems)
	if err != nil {
		return dosing.EventRecord{}, fmt.Errorf("postgres: encode dose items: %w", err)
	}
	var annotations any
	if len(record.Details.Annotations) > 0 {
		encoded, err := json.Marshal(record.Details.Annotations)
		if err != nil {
			return dosing.EventRecord{}, fmt.Errorf("postgres: encode annotations: %w", err)
		}
		annotations = string(encoded)
	}

	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO dose_events (id, due_at, group_label, status, acted_at,
			schedule_id, dose_items, annotations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10)
		ON CONFLICT (due_at, group_label) DO NOTHING`,
		record.ID,
		record.DueAt.UTC(),
		record.GroupLabel,
		string(record.Status),
		record.ActedAt,
		record.Details.ScheduleID,
		string(items),
		annotations,
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		return dosing.EventRecord{}, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return dosing.EventRecord{}, persistence.ErrDuplicate
	}
	return r.GetEvent(ctx, record.ID)
}

// GetEvent loads one event record by id.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (dosing.EventRecord, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, due_at, group_label, status, acted_at, schedule_id,
			dose_items, annotations, created_at, updated_at
		FROM dose_events WHERE id = $1`, id)
	return scanEvent(row)
}

// GetEventsByDateRange returns records due within [start, end], inclusive,
// ordered by due instant then id.
func (r *EventRepository) GetEventsByDateRange(ctx context.Context, start, end time.Time) ([]dosing.EventRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, due_at, group_label, status, acted_at, schedule_id,
			dose_items, annotations, created_at, updated_at
		FROM dose_events
		WHERE due_at >= $1 AND due_at <= $2
		ORDER BY due_at, id`, start.UTC(), end.UTC())
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var records []dosing.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateEventStatus applies a status transition to an existing record.
func (r *EventRepository) UpdateEventStatus(ctx context.Context, id string, status dosing.EventStatus, actedAt *time.Time, details *dosing.EventDetails) error {
	if !status.Valid() {
		return persistence.ErrConstraintViolation
	}
	now := time.Now().UTC()
	var tag pgconn.CommandTag
	var err error
	if details != nil {
		var annotations any
		if len(details.Annotations) > 0 {
			encoded, encErr := json.Marshal(details.Annotations)
			if encErr != nil {
				return fmt.Errorf("postgres: encode annotations: %w", encErr)
			}
			annotations = string(encoded)
		}
		tag, err = r.db.Pool.Exec(ctx, `
			UPDATE dose_events SET status = $1, acted_at = $2, annotations = $3::jsonb, updated_at = $4
			WHERE id = $5`, string(status), actedAt, annotations, now, id)
	} else {
		tag, err = r.db.Pool.Exec(ctx, `
			UPDATE dose_events SET status = $1, acted_at = $2, updated_at = $3
			WHERE id = $4`, string(status), actedAt, now, id)
	}
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanEvent(row pgRow) (dosing.EventRecord, error) {
	var (
		record      dosing.EventRecord
		status      string
		items       []byte
		annotations []byte
	)
	err := row.Scan(
		&record.ID,
		&record.DueAt,
		&record.GroupLabel,
		&status,
		&record.ActedAt,
		&record.Details.ScheduleID,
		&items,
		&annotations,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return dosing.EventRecord{}, mapPgError(err)
	}
	record.Status = dosing.EventStatus(status)
	if err := json.Unmarshal(items, &record.Details.DoseItems); err != nil {
		return dosing.EventRecord{}, fmt.Errorf("postgres: decode dose items: %w", err)
	}
	if len(annotations) > 0 {
		if err := json.Unmarshal(annotations, &record.Details.Annotations); err != nil {
			return dosing.EventRecord{}, fmt.Errorf("postgres: decode annotations: %w", err)
		}
	}
	return record, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	}
	return err
}
