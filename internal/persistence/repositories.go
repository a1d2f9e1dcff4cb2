// Package persistence defines the storage contracts of the dose scheduler.
// Implementations live in subpackages; the engine itself only ever talks to
// these interfaces.
package persistence

import (
	"context"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
)

// ScheduleRepository stores schedules and their dose items.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule dosing.Schedule) error
	UpdateSchedule(ctx context.Context, schedule dosing.Schedule) error
	GetSchedule(ctx context.Context, id string) (dosing.Schedule, error)
	ListSchedules(ctx context.Context) ([]dosing.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// MedicationRepository stores the medication directory entries.
type MedicationRepository interface {
	UpsertMedication(ctx context.Context, medication dosing.Medication) error
	GetMedication(ctx context.Context, id string) (dosing.Medication, error)
	ListMedications(ctx context.Context) ([]dosing.Medication, error)
	DeleteMedication(ctx context.Context, id string) error
}

// EventRepository stores the durable due-dose event log. CreateEvent returns
// ErrDuplicate when a record with the same identity key (due instant plus
// group label) already exists; the schema enforces that uniqueness so
// concurrent reconciliation runs cannot double-materialize an occurrence.
type EventRepository interface {
	CreateEvent(ctx context.Context, record dosing.EventRecord) (dosing.EventRecord, error)
	GetEvent(ctx context.Context, id string) (dosing.EventRecord, error)
	GetEventsByDateRange(ctx context.Context, start, end time.Time) ([]dosing.EventRecord, error)
	UpdateEventStatus(ctx context.Context, id string, status dosing.EventStatus, actedAt *time.Time, details *dosing.EventDetails) error
}
