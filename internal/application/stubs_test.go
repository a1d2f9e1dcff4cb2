package application

import (
	"context"
	"sort"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/persistence"
)

// scheduleStoreStub backs the services with an in-memory schedule set.
type scheduleStoreStub struct {
	schedules map[string]dosing.Schedule
	err       error
}

func newScheduleStoreStub(schedules ...dosing.Schedule) *scheduleStoreStub {
	stub := &scheduleStoreStub{schedules: make(map[string]dosing.Schedule)}
	for _, schedule := range schedules {
		stub.schedules[schedule.ID] = schedule
	}
	return stub
}

func (s *scheduleStoreStub) CreateSchedule(ctx context.Context, schedule dosing.Schedule) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.schedules[schedule.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *scheduleStoreStub) UpdateSchedule(ctx context.Context, schedule dosing.Schedule) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.schedules[schedule.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *scheduleStoreStub) GetSchedule(ctx context.Context, id string) (dosing.Schedule, error) {
	if s.err != nil {
		return dosing.Schedule{}, s.err
	}
	schedule, ok := s.schedules[id]
	if !ok {
		return dosing.Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

func (s *scheduleStoreStub) ListSchedules(ctx context.Context) ([]dosing.Schedule, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]dosing.Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *scheduleStoreStub) DeleteSchedule(ctx context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

// eventLogStub is an in-memory event log enforcing the identity uniqueness
// the real stores carry as a unique index.
type eventLogStub struct {
	records   map[string]dosing.EventRecord
	createErr error
	fetchErr  error
	creates   int
}

func newEventLogStub() *eventLogStub {
	return &eventLogStub{records: make(map[string]dosing.EventRecord)}
}

func (l *eventLogStub) CreateEvent(ctx context.Context, record dosing.EventRecord) (dosing.EventRecord, error) {
	if l.createErr != nil {
		return dosing.EventRecord{}, l.createErr
	}
	for _, existing := range l.records {
		if existing.IdentityKey() == record.IdentityKey() {
			return dosing.EventRecord{}, persistence.ErrDuplicate
		}
	}
	l.creates++
	l.records[record.ID] = record
	return record, nil
}

func (l *eventLogStub) GetEvent(ctx context.Context, id string) (dosing.EventRecord, error) {
	if l.fetchErr != nil {
		return dosing.EventRecord{}, l.fetchErr
	}
	record, ok := l.records[id]
	if !ok {
		return dosing.EventRecord{}, persistence.ErrNotFound
	}
	return record, nil
}

func (l *eventLogStub) GetEventsByDateRange(ctx context.Context, start, end time.Time) ([]dosing.EventRecord, error) {
	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	var out []dosing.EventRecord
	for _, record := range l.records {
		if record.DueAt.Before(start) || record.DueAt.After(end) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (l *eventLogStub) UpdateEventStatus(ctx context.Context, id string, status dosing.EventStatus, actedAt *time.Time, details *dosing.EventDetails) error {
	record, ok := l.records[id]
	if !ok {
		return persistence.ErrNotFound
	}
	record.Status = status
	record.ActedAt = actedAt
	if details != nil {
		record.Details = *details
	}
	l.records[id] = record
	return nil
}

// directoryStub resolves medications from a fixed map.
type directoryStub struct {
	medications map[string]dosing.Medication
	err         error
}

func (d *directoryStub) Lookup(ctx context.Context, id string) (dosing.Medication, error) {
	if d.err != nil {
		return dosing.Medication{}, d.err
	}
	medication, ok := d.medications[id]
	if !ok {
		return dosing.Medication{}, dosing.ErrMedicationNotFound
	}
	return medication, nil
}

// reminderPlannerStub records planner invocations.
type reminderPlannerStub struct {
	planned  []string
	canceled []string
}

func (r *reminderPlannerStub) PlanReminders(ctx context.Context, schedule dosing.Schedule, occurrences []dosing.Occurrence, label string) error {
	r.planned = append(r.planned, schedule.ID)
	return nil
}

func (r *reminderPlannerStub) CancelReminders(ctx context.Context, scheduleID string) error {
	r.canceled = append(r.canceled, scheduleID)
	return nil
}

