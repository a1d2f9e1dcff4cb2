package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/lockout"
	"github.com/example/dose-scheduler/internal/persistence"
)

// snoozeCountAnnotation is the details key tracking how often an event has
// been postponed.
const snoozeCountAnnotation = "snooze_count"

// EventService applies caller-driven status transitions to the event log and
// runs the time-based missed sweep. Reconciliation is the only writer of new
// records; this service only ever mutates existing ones.
type EventService struct {
	events    EventLog
	schedules ScheduleStore
	now       func() time.Time
	logger    *slog.Logger
}

// NewEventService wires dependencies for event mutations.
func NewEventService(events EventLog, schedules ScheduleStore, now func() time.Time, logger *slog.Logger) *EventService {
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:    events,
		schedules: schedules,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// UpdateStatus moves an event to the requested status if the status machine
// permits it, stamping the action time.
func (s *EventService) UpdateStatus(ctx context.Context, eventID string, status dosing.EventStatus) (dosing.EventRecord, error) {
	if s == nil || s.events == nil {
		return dosing.EventRecord{}, fmt.Errorf("event log not configured")
	}
	logger := serviceLogger(ctx, s.logger, "event", "update_status", "event_id", eventID, "status", string(status))

	if !status.Valid() {
		return dosing.EventRecord{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return dosing.EventRecord{}, mapEventRepoError(err)
	}
	if !record.Status.CanTransitionTo(status) {
		return dosing.EventRecord{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, status)
	}

	actedAt := s.now()
	if err := s.events.UpdateEventStatus(ctx, eventID, status, &actedAt, nil); err != nil {
		return dosing.EventRecord{}, mapEventRepoError(err)
	}

	record.Status = status
	record.ActedAt = &actedAt
	logger.Info("event status updated")
	return record, nil
}

// Snooze postpones a PENDING event within its schedule's snooze budget and
// returns the instant it comes due again. The running count is kept in the
// event's annotations.
func (s *EventService) Snooze(ctx context.Context, eventID string) (time.Time, error) {
	if s == nil || s.events == nil || s.schedules == nil {
		return time.Time{}, fmt.Errorf("event service not configured")
	}
	logger := serviceLogger(ctx, s.logger, "event", "snooze", "event_id", eventID)

	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return time.Time{}, mapEventRepoError(err)
	}
	if record.Status != dosing.EventStatusPending {
		return time.Time{}, fmt.Errorf("%w: only PENDING events can be snoozed", ErrInvalidTransition)
	}

	schedule, err := s.schedules.GetSchedule(ctx, record.Details.ScheduleID)
	if err != nil {
		return time.Time{}, mapEventRepoError(err)
	}

	used := snoozeCount(record)
	budget := lockout.NewBudget(schedule.Snooze)
	if !budget.CanSnooze(used) {
		return time.Time{}, ErrSnoozeBudgetExhausted
	}

	details := record.Details
	if details.Annotations == nil {
		details.Annotations = make(map[string]string)
	}
	details.Annotations[snoozeCountAnnotation] = strconv.Itoa(used + 1)

	if err := s.events.UpdateEventStatus(ctx, eventID, record.Status, record.ActedAt, &details); err != nil {
		return time.Time{}, mapEventRepoError(err)
	}

	next := budget.NextSnoozeTime(s.now())
	logger.Info("event snoozed", "snoozes_used", used+1, "next_due", next)
	return next, nil
}

// NextEligibleDispense computes when the schedule behind an event permits
// another dispense after an action at actedAt.
func (s *EventService) NextEligibleDispense(ctx context.Context, eventID string, actedAt time.Time) (time.Time, error) {
	if s == nil || s.events == nil || s.schedules == nil {
		return time.Time{}, fmt.Errorf("event service not configured")
	}
	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return time.Time{}, mapEventRepoError(err)
	}
	schedule, err := s.schedules.GetSchedule(ctx, record.Details.ScheduleID)
	if err != nil {
		return time.Time{}, mapEventRepoError(err)
	}
	return lockout.NextEligibleTime(actedAt, schedule.LockoutMinutes), nil
}

// SweepMissed marks PENDING events whose due instant lies further than grace
// in the past as MISSED. Returns the ids of the swept events.
func (s *EventService) SweepMissed(ctx context.Context, lookback time.Duration, grace time.Duration) ([]string, error) {
	if s == nil || s.events == nil {
		return nil, fmt.Errorf("event log not configured")
	}
	logger := serviceLogger(ctx, s.logger, "event", "sweep_missed")

	now := s.now()
	cutoff := now.Add(-grace)
	records, err := s.events.GetEventsByDateRange(ctx, now.Add(-lookback), cutoff)
	if err != nil {
		return nil, mapEventRepoError(err)
	}

	var swept []string
	for _, record := range records {
		if record.Status != dosing.EventStatusPending {
			continue
		}
		if record.DueAt.After(cutoff) {
			continue
		}
		if err := s.events.UpdateEventStatus(ctx, record.ID, dosing.EventStatusMissed, nil, nil); err != nil {
			return swept, mapEventRepoError(err)
		}
		swept = append(swept, record.ID)
	}

	if len(swept) > 0 {
		logger.Info("marked overdue events missed", "count", len(swept))
	}
	return swept, nil
}

func snoozeCount(record dosing.EventRecord) int {
	raw, ok := record.Details.Annotations[snoozeCountAnnotation]
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}
