// Package testfixtures supplies deterministic clocks, identifier generators
// and domain fixtures shared by the persistence and application test suites.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
)

var (
	scheduleCounter   uint64
	medicationCounter uint64
	eventCounter      uint64
)

var referenceTime = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*dosing.Schedule)

// NewScheduleFixture returns a deterministic daily schedule with optional
// overrides. The defaults produce a valid schedule firing at 08:00 UTC.
func NewScheduleFixture(opts ...ScheduleOption) dosing.Schedule {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := dosing.Schedule{
		ID:             fmt.Sprintf("schedule-%03d", idx),
		Title:          fmt.Sprintf("Schedule %03d", idx),
		Times:          []string{"08:00"},
		RRule:          "FREQ=DAILY",
		Start:          referenceTime.Truncate(24 * time.Hour),
		LockoutMinutes: 60,
		Snooze:         dosing.SnoozePolicy{IntervalMinutes: 10, MaxSnoozes: 3},
		DoseItems:      []dosing.DoseItem{{MedicationID: "medication-001", Quantity: 1}},
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithScheduleID overrides the generated schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(s *dosing.Schedule) { s.ID = id }
}

// WithScheduleTimes overrides the times of day.
func WithScheduleTimes(times ...string) ScheduleOption {
	return func(s *dosing.Schedule) { s.Times = times }
}

// WithScheduleRRule overrides the recurrence rule.
func WithScheduleRRule(rule string) ScheduleOption {
	return func(s *dosing.Schedule) { s.RRule = rule }
}

// WithScheduleWindow overrides the active window.
func WithScheduleWindow(start time.Time, end *time.Time) ScheduleOption {
	return func(s *dosing.Schedule) {
		s.Start = start
		s.End = end
	}
}

// WithScheduleDoseItems overrides the dose items.
func WithScheduleDoseItems(items ...dosing.DoseItem) ScheduleOption {
	return func(s *dosing.Schedule) { s.DoseItems = items }
}

// WithScheduleSnooze overrides the snooze policy.
func WithScheduleSnooze(policy dosing.SnoozePolicy) ScheduleOption {
	return func(s *dosing.Schedule) { s.Snooze = policy }
}

// -------------------------- Medication fixtures --------------------------

// MedicationOption configures the generated medication fixture.
type MedicationOption func(*dosing.Medication)

// NewMedicationFixture returns a deterministic medication with optional
// overrides.
func NewMedicationFixture(opts ...MedicationOption) dosing.Medication {
	idx := atomic.AddUint64(&medicationCounter, 1)
	fixture := dosing.Medication{
		ID:           fmt.Sprintf("medication-%03d", idx),
		Name:         fmt.Sprintf("Medication %03d", idx),
		MaxDailyDose: 0,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMedicationID overrides the generated medication ID.
func WithMedicationID(id string) MedicationOption {
	return func(m *dosing.Medication) { m.ID = id }
}

// WithMedicationName overrides the generated name.
func WithMedicationName(name string) MedicationOption {
	return func(m *dosing.Medication) { m.Name = name }
}

// WithMaxDailyDose sets the daily ceiling.
func WithMaxDailyDose(limit int) MedicationOption {
	return func(m *dosing.Medication) { m.MaxDailyDose = limit }
}

// ---------------------------- Event fixtures -----------------------------

// EventOption configures the generated event fixture.
type EventOption func(*dosing.EventRecord)

// NewEventFixture returns a deterministic PENDING dose event with optional
// overrides. Each fixture is due one hour after the previous one so identity
// keys never collide by accident.
func NewEventFixture(opts ...EventOption) dosing.EventRecord {
	idx := atomic.AddUint64(&eventCounter, 1)
	due := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := dosing.EventRecord{
		ID:         fmt.Sprintf("event-%03d", idx),
		DueAt:      due,
		GroupLabel: fmt.Sprintf("1× Medication %03d", idx),
		Status:     dosing.EventStatusPending,
		Details: dosing.EventDetails{
			ScheduleID: fmt.Sprintf("schedule-%03d", idx),
			DoseItems:  []dosing.DoseItem{{MedicationID: fmt.Sprintf("medication-%03d", idx), Quantity: 1}},
		},
		CreatedAt: due.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(e *dosing.EventRecord) { e.ID = id }
}

// WithEventDueAt overrides the due instant.
func WithEventDueAt(due time.Time) EventOption {
	return func(e *dosing.EventRecord) { e.DueAt = due }
}

// WithEventStatus overrides the status.
func WithEventStatus(status dosing.EventStatus) EventOption {
	return func(e *dosing.EventRecord) { e.Status = status }
}

// WithEventGroupLabel overrides the group label.
func WithEventGroupLabel(label string) EventOption {
	return func(e *dosing.EventRecord) { e.GroupLabel = label }
}

// WithEventDetails overrides the details snapshot.
func WithEventDetails(details dosing.EventDetails) EventOption {
	return func(e *dosing.EventRecord) { e.Details = details }
}
