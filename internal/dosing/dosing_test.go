package dosing

import (
	"errors"
	"testing"
	"time"
)

func validSchedule() Schedule {
	return Schedule{
		ID:        "sched-1",
		Times:     []string{"08:00"},
		RRule:     "FREQ=DAILY",
		Start:     time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		DoseItems: []DoseItem{{MedicationID: "med-1", Quantity: 1}},
	}
}

func TestScheduleValidate(t *testing.T) {
	t.Parallel()

	t.Run("accepts a well formed schedule", func(t *testing.T) {
		t.Parallel()
		if err := validSchedule().Validate(); err != nil {
			t.Fatalf("Validate returned error: %v", err)
		}
	})

	t.Run("rejects structural violations", func(t *testing.T) {
		t.Parallel()

		mutations := map[string]func(*Schedule){
			"no times":          func(s *Schedule) { s.Times = nil },
			"no dose items":     func(s *Schedule) { s.DoseItems = nil },
			"zero quantity":     func(s *Schedule) { s.DoseItems[0].Quantity = 0 },
			"missing med id":    func(s *Schedule) { s.DoseItems[0].MedicationID = "" },
			"zero start":        func(s *Schedule) { s.Start = time.Time{} },
			"end before start":  func(s *Schedule) { end := s.Start.AddDate(0, 0, -1); s.End = &end },
			"negative quantity": func(s *Schedule) { s.DoseItems[0].Quantity = -2 },
		}
		for name, mutate := range mutations {
			schedule := validSchedule()
			mutate(&schedule)
			if err := schedule.Validate(); !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("%s: Validate = %v, want ErrInvalidSchedule", name, err)
			}
		}
	})
}

func TestScheduleLocation(t *testing.T) {
	t.Parallel()

	schedule := validSchedule()
	loc, err := schedule.Location(nil)
	if err != nil {
		t.Fatalf("Location returned error: %v", err)
	}
	if loc != time.UTC {
		t.Fatalf("fallback location = %v, want UTC", loc)
	}

	schedule.Timezone = "America/New_York"
	loc, err = schedule.Location(time.UTC)
	if err != nil {
		t.Fatalf("Location returned error: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Fatalf("location = %v, want America/New_York", loc)
	}

	schedule.Timezone = "Not/AZone"
	if _, err := schedule.Location(time.UTC); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Location = %v, want ErrInvalidSchedule", err)
	}
}

func TestEventStatusTransitions(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to EventStatus }{
		{EventStatusPending, EventStatusTaken},
		{EventStatusPending, EventStatusSkipped},
		{EventStatusPending, EventStatusFailed},
		{EventStatusPending, EventStatusMissed},
		{EventStatusFailed, EventStatusTaken},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to EventStatus }{
		{EventStatusTaken, EventStatusSkipped},
		{EventStatusSkipped, EventStatusTaken},
		{EventStatusMissed, EventStatusTaken},
		{EventStatusFailed, EventStatusSkipped},
		{EventStatusPending, EventStatusPending},
	}
	for _, tc := range denied {
		if tc.from.CanTransitionTo(tc.to) {
			t.Fatalf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, time.March, 4, 8, 0, 0, 500, time.UTC)
	record := EventRecord{DueAt: due, GroupLabel: "2× Metformin"}

	want := "2024-03-04T08:00:00Z-2× Metformin"
	if got := record.IdentityKey(); got != want {
		t.Fatalf("IdentityKey = %q, want %q", got, want)
	}

	// Zone conversions must not change the key.
	loc, _ := time.LoadLocation("America/New_York")
	shifted := EventRecord{DueAt: due.In(loc), GroupLabel: "2× Metformin"}
	if got := shifted.IdentityKey(); got != want {
		t.Fatalf("IdentityKey after zone shift = %q, want %q", got, want)
	}
}
