package label

import (
	"context"
	"errors"
	"testing"

	"github.com/example/dose-scheduler/internal/dosing"
)

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

func TestBuild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	directory := &directoryStub{medications: map[string]dosing.Medication{
		"metformin":    {ID: "metformin", Name: "Metformin"},
		"atorvastatin": {ID: "atorvastatin", Name: "Atorvastatin"},
	}}

	items := []dosing.DoseItem{
		{MedicationID: "metformin", Quantity: 2},
		{MedicationID: "atorvastatin", Quantity: 1},
	}

	t.Run("joins resolved items in schedule order", func(t *testing.T) {
		t.Parallel()

		got, err := Build(ctx, items, directory)
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if want := "2× Metformin + 1× Atorvastatin"; got != want {
			t.Fatalf("Build = %q, want %q", got, want)
		}
	})

	t.Run("skips unknown medications silently", func(t *testing.T) {
		t.Parallel()

		partial := &directoryStub{medications: map[string]dosing.Medication{
			"metformin": {ID: "metformin", Name: "Metformin"},
		}}
		got, err := Build(ctx, items, partial)
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if want := "2× Metformin"; got != want {
			t.Fatalf("Build = %q, want %q", got, want)
		}
	})

	t.Run("returns empty string when nothing resolves", func(t *testing.T) {
		t.Parallel()

		empty := &directoryStub{medications: map[string]dosing.Medication{}}
		got, err := Build(ctx, items, empty)
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if got != "" {
			t.Fatalf("Build = %q, want empty string", got)
		}
	})

	t.Run("propagates directory failures", func(t *testing.T) {
		t.Parallel()

		failure := errors.New("directory offline")
		broken := &directoryStub{err: failure}
		if _, err := Build(ctx, items, broken); !errors.Is(err, failure) {
			t.Fatalf("Build error = %v, want %v", err, failure)
		}
	})
}
