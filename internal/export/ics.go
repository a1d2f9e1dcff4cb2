// Package export renders expanded dose occurrences as an iCalendar feed so
// users can subscribe from a regular calendar client.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/label"
	"github.com/example/dose-scheduler/internal/recurrence"
)

const productID = "-//dose-scheduler//calendar feed//EN"

// defaultEventDuration is the VEVENT length assigned to a dose occurrence.
// Doses are instants, but zero length events render poorly in most clients.
const defaultEventDuration = 15 * time.Minute

// Feed expands schedules into a serialized VCALENDAR.
type Feed struct {
	expander    *recurrence.Expander
	medications dosing.MedicationDirectory
	now         func() time.Time
}

// NewFeed builds a calendar feed over the given expander and directory. A nil
// now falls back to time.Now.
func NewFeed(expander *recurrence.Expander, medications dosing.MedicationDirectory, now func() time.Time) *Feed {
	if expander == nil {
		expander = recurrence.NewExpander(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Feed{expander: expander, medications: medications, now: now}
}

// Render expands every schedule over [rangeStart, rangeEnd] and serializes
// the occurrences as VEVENTs. Schedules that fail to expand are skipped so a
// single malformed rule cannot take down the whole feed; the skipped ids are
// returned alongside the payload.
func (f *Feed) Render(ctx context.Context, schedules []dosing.Schedule, rangeStart, rangeEnd time.Time) (string, []string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	stamp := f.now().UTC()
	var skipped []string

	sorted := append([]dosing.Schedule(nil), schedules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, schedule := range sorted {
		occurrences, err := f.expander.Expand(schedule, rangeStart, rangeEnd)
		if err != nil {
			skipped = append(skipped, schedule.ID)
			continue
		}

		summary := schedule.Title
		groupLabel, err := label.Build(ctx, schedule.DoseItems, f.medications)
		if err != nil {
			return "", skipped, fmt.Errorf("build label for schedule %s: %w", schedule.ID, err)
		}
		if summary == "" {
			summary = groupLabel
		}

		for _, occurrence := range occurrences {
			event := cal.AddEvent(eventUID(occurrence))
			event.SetDtStampTime(stamp)
			event.SetStartAt(occurrence.At)
			event.SetEndAt(occurrence.At.Add(defaultEventDuration))
			event.SetSummary(summary)
			if groupLabel != "" {
				event.SetDescription(groupLabel)
			}
		}
	}

	return cal.Serialize(), skipped, nil
}

func eventUID(occurrence dosing.Occurrence) string {
	return fmt.Sprintf("%s-%d@dose-scheduler", occurrence.ScheduleID, occurrence.At.UTC().Unix())
}
