// Package conflict analyses expanded schedules for unsafe or ambiguous
// dosing configurations: simultaneous dispenses across schedules and daily
// dose totals exceeding a medication's configured maximum.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/recurrence"
)

// Kind classifies a detected conflict.
type Kind string

const (
	// KindTimeOverlap indicates two schedules are due within the same minute.
	KindTimeOverlap Kind = "TIME_OVERLAP"
	// KindDailyLimitExceeded indicates a day's summed quantity for a
	// medication exceeds its configured maximum daily dose.
	KindDailyLimitExceeded Kind = "DAILY_LIMIT_EXCEEDED"
)

// Conflict describes one unsafe configuration found across schedules.
type Conflict struct {
	Kind         Kind
	Message      string
	ScheduleIDs  []string
	MedicationID string
	// At is the offending instant for time overlaps.
	At time.Time
	// Day is the offending calendar day (YYYY-MM-DD) for daily limits.
	Day string
}

// Report carries the detected conflicts plus per-schedule expansion errors.
// A malformed schedule never aborts the batch; its error is collected here so
// callers can surface it alongside the conflicts of the healthy schedules.
type Report struct {
	Conflicts      []Conflict
	ScheduleErrors map[string]error
}

// Detector runs the overlap and daily-limit passes over expanded schedules.
type Detector struct {
	expander *recurrence.Expander
	location *time.Location
}

// NewDetector constructs a Detector. Day grouping for the daily-limit pass is
// performed in loc; a nil loc falls back to the expander's location.
func NewDetector(expander *recurrence.Expander, loc *time.Location) *Detector {
	if expander == nil {
		expander = recurrence.NewExpander(nil)
	}
	if loc == nil {
		loc = expander.Location()
	}
	return &Detector{expander: expander, location: loc}
}

// Detect expands every schedule over [rangeStart, rangeEnd] and reports
// same-minute collisions between distinct schedules and per-day dose totals
// exceeding a medication's maximum. Directory failures other than unknown
// medications abort the run.
func (d *Detector) Detect(ctx context.Context, schedules []dosing.Schedule, directory dosing.MedicationDirectory, rangeStart, rangeEnd time.Time) (Report, error) {
	report := Report{ScheduleErrors: make(map[string]error)}

	byID := make(map[string]dosing.Schedule, len(schedules))
	var all []dosing.Occurrence
	for _, schedule := range schedules {
		byID[schedule.ID] = schedule
		occurrences, err := d.expander.Expand(schedule, rangeStart, rangeEnd)
		if err != nil {
			report.ScheduleErrors[schedule.ID] = err
			continue
		}
		all = append(all, occurrences...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].At.Equal(all[j].At) {
			return all[i].ScheduleID < all[j].ScheduleID
		}
		return all[i].At.Before(all[j].At)
	})

	report.Conflicts = append(report.Conflicts, detectOverlaps(all)...)

	limits, err := detectDailyLimits(ctx, all, byID, directory, d.location)
	if err != nil {
		return Report{}, err
	}
	report.Conflicts = append(report.Conflicts, limits...)

	return report, nil
}

// detectOverlaps scans the sorted occurrence list pairwise. Collisions of
// more than two schedules within one minute are reported as one conflict per
// adjacent pair, which still names every colliding schedule at least once.
func detectOverlaps(sorted []dosing.Occurrence) []Conflict {
	var conflicts []Conflict
	for i := 1; i < len(sorted); i++ {
		previous := sorted[i-1]
		current := sorted[i]
		if previous.ScheduleID == current.ScheduleID {
			continue
		}
		if !previous.At.Truncate(time.Minute).Equal(current.At.Truncate(time.Minute)) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Kind: KindTimeOverlap,
			Message: fmt.Sprintf("schedules %s and %s are both due at %s",
				previous.ScheduleID, current.ScheduleID, previous.At.Format(time.RFC3339)),
			ScheduleIDs: []string{previous.ScheduleID, current.ScheduleID},
			At:          previous.At,
		})
	}
	return conflicts
}

func detectDailyLimits(ctx context.Context, occurrences []dosing.Occurrence, schedules map[string]dosing.Schedule, directory dosing.MedicationDirectory, loc *time.Location) ([]Conflict, error) {
	if directory == nil {
		return nil, nil
	}

	type dayTotals struct {
		quantities map[string]int
		schedules  map[string]map[string]struct{}
	}

	days := make(map[string]*dayTotals)
	for _, occurrence := range occurrences {
		schedule, ok := schedules[occurrence.ScheduleID]
		if !ok {
			continue
		}
		day := occurrence.At.In(loc).Format("2006-01-02")
		totals, ok := days[day]
		if !ok {
			totals = &dayTotals{
				quantities: make(map[string]int),
				schedules:  make(map[string]map[string]struct{}),
			}
			days[day] = totals
		}
		for _, item := range schedule.DoseItems {
			totals.quantities[item.MedicationID] += item.Quantity
			if totals.schedules[item.MedicationID] == nil {
				totals.schedules[item.MedicationID] = make(map[string]struct{})
			}
			totals.schedules[item.MedicationID][occurrence.ScheduleID] = struct{}{}
		}
	}

	var conflicts []Conflict
	for _, day := range sortedKeys(days) {
		totals := days[day]
		for _, medicationID := range sortedKeys(totals.quantities) {
			total := totals.quantities[medicationID]
			medication, err := directory.Lookup(ctx, medicationID)
			if err != nil {
				if errors.Is(err, dosing.ErrMedicationNotFound) {
					continue
				}
				return nil, err
			}
			if medication.MaxDailyDose <= 0 || total <= medication.MaxDailyDose {
				continue
			}
			ids := make([]string, 0, len(totals.schedules[medicationID]))
			for id := range totals.schedules[medicationID] {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			conflicts = append(conflicts, Conflict{
				Kind: KindDailyLimitExceeded,
				Message: fmt.Sprintf("daily dose of %s on %s is %d, exceeding the maximum of %d",
					medication.Name, day, total, medication.MaxDailyDose),
				ScheduleIDs:  ids,
				MedicationID: medicationID,
				Day:          day,
			})
		}
	}

	return conflicts, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
