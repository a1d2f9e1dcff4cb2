// Package recurrence expands schedule recurrence rules into concrete
// occurrence instants within a bounded time range.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/timeofday"
)

// ErrInvalidRecurrenceRule indicates the schedule's rule string could not be
// parsed by the RFC 5545 grammar.
var ErrInvalidRecurrenceRule = errors.New("recurrence: invalid recurrence rule")

// ErrInvalidRange indicates the requested range end precedes its start.
var ErrInvalidRange = errors.New("recurrence: range end is before range start")

// Expander expands schedules into occurrences. Schedules without an explicit
// timezone are interpreted in the expander's location.
type Expander struct {
	location *time.Location
}

// NewExpander constructs an Expander whose fallback location is loc. A nil
// loc falls back to UTC, keeping expansion independent of process-global
// zone state.
func NewExpander(loc *time.Location) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	return &Expander{location: loc}
}

// Location returns the expander's fallback location.
func (e *Expander) Location() *time.Location {
	return e.location
}

// Expand produces the sorted, deduplicated occurrence instants of schedule
// within [rangeStart, rangeEnd], both ends inclusive. Instants are clipped to
// the schedule's own validity window in addition to the requested range.
//
// Identical inputs always yield identical, identically ordered output.
func (e *Expander) Expand(schedule dosing.Schedule, rangeStart, rangeEnd time.Time) ([]dosing.Occurrence, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, ErrInvalidRange
	}

	loc, err := schedule.Location(e.location)
	if err != nil {
		return nil, err
	}

	times := make([]timeofday.TimeOfDay, 0, len(schedule.Times))
	for _, entry := range schedule.Times {
		tod, err := timeofday.Parse(entry)
		if err != nil {
			return nil, err
		}
		times = append(times, tod)
	}

	days, err := triggerDays(schedule, loc, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	occurrences := make([]dosing.Occurrence, 0, len(days)*len(times))
	for _, day := range days {
		for _, tod := range times {
			at := tod.At(day, loc)
			if at.Before(schedule.Start) {
				continue
			}
			if schedule.End != nil && at.After(*schedule.End) {
				continue
			}
			if at.Before(rangeStart) || at.After(rangeEnd) {
				continue
			}
			key := at.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			occurrences = append(occurrences, dosing.Occurrence{ScheduleID: schedule.ID, At: at})
		}
	}

	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].At.Before(occurrences[j].At)
	})

	return occurrences, nil
}

// triggerDays asks the recurrence rule for every calendar day it fires on
// inside the requested range. The rule is anchored at local midnight of the
// schedule's start day so the generator enumerates whole days.
func triggerDays(schedule dosing.Schedule, loc *time.Location, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	rule, err := rrule.StrToRRule(schedule.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRecurrenceRule, schedule.RRule, err)
	}
	rule.DTStart(startOfDay(schedule.Start, loc))

	lower := startOfDay(rangeStart, loc)
	upper := endOfDay(rangeEnd, loc)
	return rule.Between(lower, upper, true), nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	return startOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Second)
}
