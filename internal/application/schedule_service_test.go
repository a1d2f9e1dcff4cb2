package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/dose-scheduler/internal/conflict"
	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/recurrence"
	"github.com/example/dose-scheduler/internal/testfixtures"
)

func scheduleServiceFixture(store *scheduleStoreStub, reminders ReminderPlanner) *ScheduleService {
	directory := &directoryStub{medications: map[string]dosing.Medication{
		"metformin": {ID: "metformin", Name: "Metformin", MaxDailyDose: 6},
	}}
	now := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	return NewScheduleService(
		store,
		directory,
		recurrence.NewExpander(time.UTC),
		reminders,
		testfixtures.NewIDGenerator("sched").NextFunc(),
		testfixtures.NewClock(now).NowFunc(),
		7,
		nil,
	)
}

func validInput() ScheduleInput {
	return ScheduleInput{
		Title:          "Morning meds",
		Times:          []string{"08:00"},
		RRule:          "FREQ=DAILY",
		Start:          time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		LockoutMinutes: 60,
		Snooze:         dosing.SnoozePolicy{IntervalMinutes: 10, MaxSnoozes: 3},
		DoseItems:      []dosing.DoseItem{{MedicationID: "metformin", Quantity: 2}},
	}
}

func TestScheduleServiceCreateSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("persists a valid schedule and plans reminders", func(t *testing.T) {
		t.Parallel()

		store := newScheduleStoreStub()
		reminders := &reminderPlannerStub{}
		service := scheduleServiceFixture(store, reminders)

		schedule, _, err := service.CreateSchedule(ctx, validInput())
		if err != nil {
			t.Fatalf("CreateSchedule returned error: %v", err)
		}
		if schedule.ID == "" {
			t.Fatal("schedule id not assigned")
		}
		if _, ok := store.schedules[schedule.ID]; !ok {
			t.Fatal("schedule not persisted")
		}
		if len(reminders.planned) != 1 || reminders.planned[0] != schedule.ID {
			t.Fatalf("reminders planned = %v, want [%s]", reminders.planned, schedule.ID)
		}
	})

	t.Run("rejects invalid input with field errors", func(t *testing.T) {
		t.Parallel()

		service := scheduleServiceFixture(newScheduleStoreStub(), nil)

		mutations := map[string]func(*ScheduleInput){
			"times":      func(in *ScheduleInput) { in.Times = nil },
			"rrule":      func(in *ScheduleInput) { in.RRule = " " },
			"start":      func(in *ScheduleInput) { in.Start = time.Time{} },
			"dose_items": func(in *ScheduleInput) { in.DoseItems = nil },
			"timezone":   func(in *ScheduleInput) { in.Timezone = "Mars/OlympusMons" },
			"end": func(in *ScheduleInput) {
				end := in.Start.AddDate(0, 0, -1)
				in.End = &end
			},
		}
		for field, mutate := range mutations {
			input := validInput()
			mutate(&input)
			_, _, err := service.CreateSchedule(ctx, input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("%s: err = %v, want ValidationError", field, err)
			}
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("%s: field errors = %v, missing %q", field, vErr.FieldErrors, field)
			}
		}
	})

	t.Run("reports overlap conflicts introduced by the new schedule", func(t *testing.T) {
		t.Parallel()

		existing := dosing.Schedule{
			ID:        "existing",
			Times:     []string{"08:00"},
			RRule:     "FREQ=DAILY",
			Start:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			DoseItems: []dosing.DoseItem{{MedicationID: "metformin", Quantity: 1}},
		}
		service := scheduleServiceFixture(newScheduleStoreStub(existing), nil)

		_, warnings, err := service.CreateSchedule(ctx, validInput())
		if err != nil {
			t.Fatalf("CreateSchedule returned error: %v", err)
		}
		var overlaps int
		for _, warning := range warnings {
			if warning.Kind == conflict.KindTimeOverlap {
				overlaps++
			}
		}
		if overlaps == 0 {
			t.Fatalf("expected overlap warnings, got %v", warnings)
		}
	})
}

func TestScheduleServiceUpdateSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	existing := dosing.Schedule{
		ID:        "sched-1",
		Times:     []string{"08:00"},
		RRule:     "FREQ=DAILY",
		Start:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		DoseItems: []dosing.DoseItem{{MedicationID: "metformin", Quantity: 1}},
	}

	t.Run("applies changes to an existing schedule", func(t *testing.T) {
		t.Parallel()

		store := newScheduleStoreStub(existing)
		service := scheduleServiceFixture(store, nil)

		input := validInput()
		input.Title = "Evening meds"
		input.Times = []string{"20:00"}

		updated, _, err := service.UpdateSchedule(ctx, "sched-1", input)
		if err != nil {
			t.Fatalf("UpdateSchedule returned error: %v", err)
		}
		if updated.Title != "Evening meds" || updated.Times[0] != "20:00" {
			t.Fatalf("update not applied: %+v", updated)
		}
		if store.schedules["sched-1"].Title != "Evening meds" {
			t.Fatal("update not persisted")
		}
	})

	t.Run("missing schedules map to ErrNotFound", func(t *testing.T) {
		t.Parallel()

		service := scheduleServiceFixture(newScheduleStoreStub(), nil)
		if _, _, err := service.UpdateSchedule(ctx, "missing", validInput()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestScheduleServiceDeleteSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	existing := dosing.Schedule{
		ID:        "sched-1",
		Times:     []string{"08:00"},
		RRule:     "FREQ=DAILY",
		Start:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		DoseItems: []dosing.DoseItem{{MedicationID: "metformin", Quantity: 1}},
	}

	store := newScheduleStoreStub(existing)
	reminders := &reminderPlannerStub{}
	service := scheduleServiceFixture(store, reminders)

	if err := service.DeleteSchedule(ctx, "sched-1"); err != nil {
		t.Fatalf("DeleteSchedule returned error: %v", err)
	}
	if _, ok := store.schedules["sched-1"]; ok {
		t.Fatal("schedule still persisted")
	}
	if len(reminders.canceled) != 1 || reminders.canceled[0] != "sched-1" {
		t.Fatalf("reminders canceled = %v, want [sched-1]", reminders.canceled)
	}

	if err := service.DeleteSchedule(ctx, "sched-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestScheduleServiceDetectConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := dosing.Schedule{
		ID:        "sched-a",
		Times:     []string{"08:00"},
		RRule:     "FREQ=DAILY",
		Start:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		DoseItems: []dosing.DoseItem{{MedicationID: "metformin", Quantity: 4}},
	}
	b := dosing.Schedule{
		ID:        "sched-b",
		Times:     []string{"20:00"},
		RRule:     "FREQ=DAILY",
		Start:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		DoseItems: []dosing.DoseItem{{MedicationID: "metformin", Quantity: 4}},
	}

	service := scheduleServiceFixture(newScheduleStoreStub(a, b), nil)
	rangeStart := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	rangeEnd := rangeStart.AddDate(0, 0, 1).Add(-time.Second)

	report, err := service.DetectConflicts(ctx, rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("DetectConflicts returned error: %v", err)
	}
	var limits int
	for _, c := range report.Conflicts {
		if c.Kind == conflict.KindDailyLimitExceeded {
			limits++
		}
	}
	if limits != 1 {
		t.Fatalf("got %d daily limit conflicts, want 1 (report: %+v)", limits, report.Conflicts)
	}

	// Identical ranges are served from the cache until a mutation.
	cached, err := service.DetectConflicts(ctx, rangeStart, rangeEnd)
	if err != nil {
		t.Fatalf("cached DetectConflicts returned error: %v", err)
	}
	if len(cached.Conflicts) != len(report.Conflicts) {
		t.Fatalf("cached report differs: %d vs %d", len(cached.Conflicts), len(report.Conflicts))
	}
}
