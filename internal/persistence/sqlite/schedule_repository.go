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

// ScheduleRepository implements persistence.ScheduleRepository on SQLite.
type ScheduleRepository struct {
	store *Store
}

// NewScheduleRepository binds a repository to the store.
func NewScheduleRepository(store *Store) *ScheduleRepository {
	return &ScheduleRepository{store: store}
}

// CreateSchedule inserts a schedule and its dose items.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule dosing.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	times, err := json.Marshal(schedule.Times)
	if err != nil {
		return fmt.Errorf("sqlite: encode times: %w", err)
	}

	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (id, title, times, rrule, timezone, start_at, end_at,
				lockout_minutes, snooze_interval_minutes, snooze_max, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			schedule.ID,
			schedule.Title,
			string(times),
			schedule.RRule,
			schedule.Timezone,
			schedule.Start.UTC().Format(time.RFC3339),
			nullableTime(schedule.End),
			schedule.LockoutMinutes,
			schedule.Snooze.IntervalMinutes,
			schedule.Snooze.MaxSnoozes,
			schedule.CreatedAt.UTC().Format(time.RFC3339),
			schedule.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return mapError(err)
		}
		return insertDoseItems(ctx, tx, schedule.ID, schedule.DoseItems)
	})
}

// UpdateSchedule replaces a schedule and its dose items.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule dosing.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	times, err := json.Marshal(schedule.Times)
	if err != nil {
		return fmt.Errorf("sqlite: encode times: %w", err)
	}

	return r.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE schedules
			SET title = ?, times = ?, rrule = ?, timezone = ?, start_at = ?, end_at = ?,
				lockout_minutes = ?, snooze_interval_minutes = ?, snooze_max = ?, updated_at = ?
			WHERE id = ?`,
			schedule.Title,
			string(times),
			schedule.RRule,
			schedule.Timezone,
			schedule.Start.UTC().Format(time.RFC3339),
			nullableTime(schedule.End),
			schedule.LockoutMinutes,
			schedule.Snooze.IntervalMinutes,
			schedule.Snooze.MaxSnoozes,
			schedule.UpdatedAt.UTC().Format(time.RFC3339),
			schedule.ID,
		)
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_dose_items WHERE schedule_id = ?`, schedule.ID); err != nil {
			return mapError(err)
		}
		return insertDoseItems(ctx, tx, schedule.ID, schedule.DoseItems)
	})
}

// GetSchedule loads one schedule with its dose items.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (dosing.Schedule, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, title, times, rrule, timezone, start_at, end_at,
			lockout_minutes, snooze_interval_minutes, snooze_max, created_at, updated_at
		FROM schedules WHERE id = ?`, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return dosing.Schedule{}, mapError(err)
	}
	items, err := r.doseItems(ctx, id)
	if err != nil {
		return dosing.Schedule{}, err
	}
	schedule.DoseItems = items
	return schedule, nil
}

// ListSchedules returns every schedule ordered by start instant then id.
func (r *ScheduleRepository) ListSchedules(ctx context.Context) ([]dosing.Schedule, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, title, times, rrule, timezone, start_at, end_at,
			lockout_minutes, snooze_interval_minutes, snooze_max, created_at, updated_at
		FROM schedules ORDER BY start_at, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var schedules []dosing.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, mapError(err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for i := range schedules {
		items, err := r.doseItems(ctx, schedules[i].ID)
		if err != nil {
			return nil, err
		}
		schedules[i].DoseItems = items
	}
	return schedules, nil
}

// DeleteSchedule removes a schedule; dose items cascade.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
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
}

func (r *ScheduleRepository) doseItems(ctx context.Context, scheduleID string) ([]dosing.DoseItem, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT medication_id, quantity FROM schedule_dose_items
		WHERE schedule_id = ? ORDER BY position`, scheduleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var items []dosing.DoseItem
	for rows.Next() {
		var item dosing.DoseItem
		if err := rows.Scan(&item.MedicationID, &item.Quantity); err != nil {
			return nil, mapError(err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertDoseItems(ctx context.Context, tx *sql.Tx, scheduleID string, items []dosing.DoseItem) error {
	for position, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_dose_items (schedule_id, position, medication_id, quantity)
			VALUES (?, ?, ?, ?)`,
			scheduleID, position, item.MedicationID, item.Quantity)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (dosing.Schedule, error) {
	var (
		schedule  dosing.Schedule
		times     string
		startAt   string
		endAt     sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&schedule.ID,
		&schedule.Title,
		&times,
		&schedule.RRule,
		&schedule.Timezone,
		&startAt,
		&endAt,
		&schedule.LockoutMinutes,
		&schedule.Snooze.IntervalMinutes,
		&schedule.Snooze.MaxSnoozes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return dosing.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(times), &schedule.Times); err != nil {
		return dosing.Schedule{}, fmt.Errorf("sqlite: decode times: %w", err)
	}
	if schedule.Start, err = time.Parse(time.RFC3339, startAt); err != nil {
		return dosing.Schedule{}, fmt.Errorf("sqlite: decode start_at: %w", err)
	}
	if endAt.Valid {
		end, err := time.Parse(time.RFC3339, endAt.String)
		if err != nil {
			return dosing.Schedule{}, fmt.Errorf("sqlite: decode end_at: %w", err)
		}
		schedule.End = &end
	}
	if schedule.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return dosing.Schedule{}, fmt.Errorf("sqlite: decode created_at: %w", err)
	}
	if schedule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return dosing.Schedule{}, fmt.Errorf("sqlite: decode updated_at: %w", err)
	}
	return schedule, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
