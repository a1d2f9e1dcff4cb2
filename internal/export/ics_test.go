package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/recurrence"
)

type directoryStub struct {
	medications map[string]dosing.Medication
}

func (d *directoryStub) Lookup(ctx context.Context, id string) (dosing.Medication, error) {
	medication, ok := d.medications[id]
	if !ok {
		return dosing.Medication{}, dosing.ErrMedicationNotFound
	}
	return medication, nil
}

func testFeed() *Feed {
	directory := &directoryStub{medications: map[string]dosing.Medication{
		"metformin": {ID: "metformin", Name: "Metformin"},
	}}
	now := time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)
	return NewFeed(recurrence.NewExpander(time.UTC), directory, func() time.Time { return now })
}

func TestFeedRender(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	schedule := dosing.Schedule{
		ID:        "sched-1",
		Title:     "Morning meds",
		Times:     []string{"08:00"},
		RRule:     "FREQ=DAILY",
		Start:     start,
		DoseItems: []dosing.DoseItem{{MedicationID: "metformin", Quantity: 2}},
	}

	t.Run("serializes one VEVENT per occurrence", func(t *testing.T) {
		t.Parallel()

		feed := testFeed()
		payload, skipped, err := feed.Render(context.Background(), []dosing.Schedule{schedule}, start, start.AddDate(0, 0, 2).Add(-time.Second))
		if err != nil {
			t.Fatalf("Render returned error: %v", err)
		}
		if len(skipped) != 0 {
			t.Fatalf("skipped = %v, want none", skipped)
		}
		if got := strings.Count(payload, "BEGIN:VEVENT"); got != 2 {
			t.Fatalf("got %d VEVENTs, want 2\n%s", got, payload)
		}
		if !strings.Contains(payload, "SUMMARY:Morning meds") {
			t.Fatalf("missing summary in payload:\n%s", payload)
		}
		if !strings.Contains(payload, "2× Metformin") {
			t.Fatalf("missing group label description in payload:\n%s", payload)
		}
	})

	t.Run("falls back to the group label when the title is empty", func(t *testing.T) {
		t.Parallel()

		untitled := schedule
		untitled.Title = ""

		feed := testFeed()
		payload, _, err := feed.Render(context.Background(), []dosing.Schedule{untitled}, start, start.AddDate(0, 0, 1).Add(-time.Second))
		if err != nil {
			t.Fatalf("Render returned error: %v", err)
		}
		if !strings.Contains(payload, "SUMMARY:2× Metformin") {
			t.Fatalf("missing label summary in payload:\n%s", payload)
		}
	})

	t.Run("skips malformed schedules and serves the rest", func(t *testing.T) {
		t.Parallel()

		broken := schedule
		broken.ID = "sched-broken"
		broken.RRule = "FREQ=NOPE"

		feed := testFeed()
		payload, skipped, err := feed.Render(context.Background(), []dosing.Schedule{broken, schedule}, start, start.AddDate(0, 0, 1).Add(-time.Second))
		if err != nil {
			t.Fatalf("Render returned error: %v", err)
		}
		if len(skipped) != 1 || skipped[0] != "sched-broken" {
			t.Fatalf("skipped = %v, want [sched-broken]", skipped)
		}
		if got := strings.Count(payload, "BEGIN:VEVENT"); got != 1 {
			t.Fatalf("got %d VEVENTs, want 1", got)
		}
	})
}
