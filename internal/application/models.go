package application

import (
	"context"
	"time"

	"github.com/example/dose-scheduler/internal/conflict"
	"github.com/example/dose-scheduler/internal/dosing"
)

// ScheduleStore captures the persistence interactions the services need for
// schedules. The storage repositories satisfy it directly.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, schedule dosing.Schedule) error
	UpdateSchedule(ctx context.Context, schedule dosing.Schedule) error
	GetSchedule(ctx context.Context, id string) (dosing.Schedule, error)
	ListSchedules(ctx context.Context) ([]dosing.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// EventLog captures the persistence interactions against the due-dose event
// log. The log is the single source of truth for which occurrences have
// already been materialized.
type EventLog interface {
	CreateEvent(ctx context.Context, record dosing.EventRecord) (dosing.EventRecord, error)
	GetEvent(ctx context.Context, id string) (dosing.EventRecord, error)
	GetEventsByDateRange(ctx context.Context, start, end time.Time) ([]dosing.EventRecord, error)
	UpdateEventStatus(ctx context.Context, id string, status dosing.EventStatus, actedAt *time.Time, details *dosing.EventDetails) error
}

// ReminderPlanner is the outward-facing notification collaborator: it is
// handed a schedule's future occurrences and their label after changes, and
// told to drop reminders when a schedule goes away. Implementations live in
// the application shell; a nil planner is ignored.
type ReminderPlanner interface {
	PlanReminders(ctx context.Context, schedule dosing.Schedule, occurrences []dosing.Occurrence, label string) error
	CancelReminders(ctx context.Context, scheduleID string) error
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	Title          string
	Times          []string
	RRule          string
	Timezone       string
	Start          time.Time
	End            *time.Time
	LockoutMinutes int
	Snooze         dosing.SnoozePolicy
	DoseItems      []dosing.DoseItem
}

// ConflictReport pairs detected conflicts with the per-schedule expansion
// errors gathered while computing them.
type ConflictReport struct {
	Conflicts      []conflict.Conflict
	ScheduleErrors map[string]error
}

// ReconcileResult reports the outcome of one reconciliation run.
type ReconcileResult struct {
	// Created lists the event records materialized by this run, in due order.
	Created []dosing.EventRecord
	// ScheduleErrors collects per-schedule expansion failures; those
	// schedules were skipped without aborting the run.
	ScheduleErrors map[string]error
}
