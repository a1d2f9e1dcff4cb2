// Package dosing defines the shared domain types of the dose scheduling
// engine: schedules, dose items, medications, and the occurrences derived
// from expanding a schedule over a time range.
package dosing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSchedule indicates a schedule violates a structural invariant.
var ErrInvalidSchedule = errors.New("dosing: invalid schedule")

// ErrMedicationNotFound is returned by a MedicationDirectory when the
// requested medication id is unknown.
var ErrMedicationNotFound = errors.New("dosing: medication not found")

// DoseItem is one medication/quantity pair dispensed at every occurrence of
// its owning schedule. Order within a schedule is significant.
type DoseItem struct {
	MedicationID string
	Quantity     int
}

// SnoozePolicy bounds how often a due dose may be postponed.
type SnoozePolicy struct {
	IntervalMinutes int
	MaxSnoozes      int
}

// Schedule is a recurrence definition plus the fixed payload it dispenses.
type Schedule struct {
	ID             string
	Title          string
	Times          []string
	RRule          string
	Timezone       string
	Start          time.Time
	End            *time.Time
	LockoutMinutes int
	Snooze         SnoozePolicy
	DoseItems      []DoseItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate reports the first structural invariant the schedule violates.
func (s Schedule) Validate() error {
	if len(s.Times) == 0 {
		return fmt.Errorf("%w: at least one time of day is required", ErrInvalidSchedule)
	}
	if len(s.DoseItems) == 0 {
		return fmt.Errorf("%w: at least one dose item is required", ErrInvalidSchedule)
	}
	for _, item := range s.DoseItems {
		if item.MedicationID == "" {
			return fmt.Errorf("%w: dose item medication id is required", ErrInvalidSchedule)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: dose item quantity must be positive", ErrInvalidSchedule)
		}
	}
	if s.Start.IsZero() {
		return fmt.Errorf("%w: start is required", ErrInvalidSchedule)
	}
	if s.End != nil && s.End.Before(s.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidSchedule)
	}
	return nil
}

// Location resolves the schedule's governing time zone, falling back to the
// provided default when the schedule does not name one.
func (s Schedule) Location(fallback *time.Location) (*time.Location, error) {
	if s.Timezone == "" {
		if fallback == nil {
			fallback = time.UTC
		}
		return fallback, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, s.Timezone)
	}
	return loc, nil
}

// Occurrence is one concrete instant a schedule is due to fire. Occurrences
// are derived on demand and never persisted.
type Occurrence struct {
	ScheduleID string
	At         time.Time
}

// Medication is a directory entry describing a dispensable medication.
type Medication struct {
	ID           string
	Name         string
	MaxDailyDose int
}

// MedicationDirectory exposes read-only medication lookups. Implementations
// return ErrMedicationNotFound (possibly wrapped) for unknown ids.
type MedicationDirectory interface {
	Lookup(ctx context.Context, medicationID string) (Medication, error)
}
