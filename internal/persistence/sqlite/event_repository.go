package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/persistence"
)

// EventRepository implements persistence.EventRepository on SQLite. The
// unique index on (due_at, group_label) backs the reconciliation identity
// key, so a concurrent run attempting to re-materialize an occurrence is
// rejected with ErrDuplicate instead of creating a second record.
type EventRepository struct {
	store *Store
}

// NewEventRepository binds a repository to the store.
func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

// CreateEvent inserts a new event record and returns it as stored.
func (r *EventRepository) CreateEvent(ctx context.Context, record dosing.EventRecord) (dosing.EventRecord, error) {
	if record.ID == "" {
		return dosing.EventRecord{}, persistence.ErrConstraintViolation
	}
	if !record.Status.Valid() {
		return dosing.EventRecord{}, persistence.ErrConstraintViolation
	}
	items, err := json.Marshal(record.Details.DoseItems)
	if err != nil {
		return dosing.EventRecord{}, fmt.Errorf("sqlite: encode dose items: %w", err)
	}
	annotations, err := encodeAnnotations(record.Details.Annotations)
	if err != nil {
		return dosing.EventRecord{}, err
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO dose_events (id, due_at, group_label, status, acted_at,
			schedule_id, dose_items, annotations, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.DueAt.UTC().Format(time.RFC3339),
		record.GroupLabel,
		string(record.Status),
		nullableTime(record.ActedAt),
		record.Details.ScheduleID,
		string(items),
		annotations,
		record.CreatedAt.UTC().Format(time.RFC3339),
		record.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return dosing.EventRecord{}, mapError(err)
	}
	return r.GetEvent(ctx, record.ID)
}

// GetEvent loads one event record by id.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (dosing.EventRecord, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, due_at, group_label, status, acted_at, schedule_id,
			dose_items, annotations, created_at, updated_at
		FROM dose_events WHERE id = ?`, id)
	record, err := scanEvent(row)
	if err != nil {
		return dosing.EventRecord{}, mapError(err)
	}
	return record, nil
}

// GetEventsByDateRange returns records due within [start, end], inclusive,
// ordered by due instant then id.
func (r *EventRepository) GetEventsByDateRange(ctx context.Context, start, end time.Time) ([]dosing.EventRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, due_at, group_label, status, acted_at, schedule_id,
			dose_items, annotations, created_at, updated_at
		FROM dose_events
		WHERE due_at >= ? AND due_at <= ?
		ORDER BY due_at, id`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var records []dosing.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, mapError(err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateEventStatus applies a status transition to an existing record. The
// details payload, when non-nil, replaces the stored annotations snapshot.
func (r *EventRepository) UpdateEventStatus(ctx context.Context, id string, status dosing.EventStatus, actedAt *time.Time, details *dosing.EventDetails) error {
	if !status.Valid() {
		return persistence.ErrConstraintViolation
	}
	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		var result sql.Result
		var err error
		if details != nil {
			annotations, encErr := encodeAnnotations(details.Annotations)
			if encErr != nil {
				return encErr
			}
			result, err = tx.ExecContext(ctx, `
				UPDATE dose_events SET status = ?, acted_at = ?, annotations = ?, updated_at = ?
				WHERE id = ?`,
				string(status), nullableTime(actedAt), annotations, now, id)
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE dose_events SET status = ?, acted_at = ?, updated_at = ?
				WHERE id = ?`,
				string(status), nullableTime(actedAt), now, id)
		}
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func scanEvent(row rowScanner) (dosing.EventRecord, error) {
	var (
		record      dosing.EventRecord
		dueAt       string
		status      string
		actedAt     sql.NullString
		items       string
		annotations sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(
		&record.ID,
		&dueAt,
		&record.GroupLabel,
		&status,
		&actedAt,
		&record.Details.ScheduleID,
		&items,
		&annotations,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return dosing.EventRecord{}, err
	}
	record.Status = dosing.EventStatus(status)
	if record.DueAt, err = time.Parse(time.RFC3339, dueAt); err != nil {
		return dosing.EventRecord{}, fmt.Errorf("sqlite: decode due_at: %w", err)
	}
	if actedAt.Valid {
		acted, err := time.Parse(time.RFC3339, actedAt.String)
		if err != nil {
			return dosing.EventRecord{}, fmt.Errorf("sqlite: decode acted_at: %w", err)
		}
		record.ActedAt = &acted
	}
	if err := json.Unmarshal([]byte(items), &record.Details.DoseItems); err != nil {
		return dosing.EventRecord{}, fmt.Errorf("sqlite: decode dose items: %w", err)
	}
	if annotations.Valid && annotations.String != "" {
		if err := json.Unmarshal([]byte(annotations.String), &record.Details.Annotations); err != nil {
			return dosing.EventRecord{}, fmt.Errorf("sqlite: decode annotations: %w", err)
		}
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return dosing.EventRecord{}, fmt.Errorf("sqlite: decode created_at: %w", err)
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return dosing.EventRecord{}, fmt.Errorf("sqlite: decode updated_at: %w", err)
	}
	return record, nil
}

func encodeAnnotations(annotations map[string]string) (any, error) {
	if len(annotations) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(annotations)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode annotations: %w", err)
	}
	return string(encoded), nil
}
