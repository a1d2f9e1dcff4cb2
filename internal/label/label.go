// Package label renders human-readable dose descriptions from the dose items
// a schedule dispenses.
package label

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/dose-scheduler/internal/dosing"
)

// Build renders a dose label such as "2× Metformin + 1× Atorvastatin" from
// the items in their schedule order. Items referencing a medication the
// directory does not know are skipped so the label degrades instead of
// failing; when nothing resolves the empty string is returned and the caller
// should treat the label as unavailable.
func Build(ctx context.Context, items []dosing.DoseItem, directory dosing.MedicationDirectory) (string, error) {
	if directory == nil {
		return "", nil
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		medication, err := directory.Lookup(ctx, item.MedicationID)
		if err != nil {
			if errors.Is(err, dosing.ErrMedicationNotFound) {
				continue
			}
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%d× %s", item.Quantity, medication.Name))
	}

	return strings.Join(parts, " + "), nil
}
