package sqlite

import (
	"context"
	"errors"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/persistence"
)

// MedicationRepository implements persistence.MedicationRepository on SQLite.
// It doubles as the dosing.MedicationDirectory consumed by the engine.
type MedicationRepository struct {
	store *Store
}

// NewMedicationRepository binds a repository to the store.
func NewMedicationRepository(store *Store) *MedicationRepository {
	return &MedicationRepository{store: store}
}

// UpsertMedication inserts or replaces a directory entry.
func (r *MedicationRepository) UpsertMedication(ctx context.Context, medication dosing.Medication) error {
	if medication.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO medications (id, name, max_daily_dose) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, max_daily_dose = excluded.max_daily_dose`,
		medication.ID, medication.Name, medication.MaxDailyDose)
	return mapError(err)
}

// GetMedication loads one directory entry.
func (r *MedicationRepository) GetMedication(ctx context.Context, id string) (dosing.Medication, error) {
	var medication dosing.Medication
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, name, max_daily_dose FROM medications WHERE id = ?`, id).
		Scan(&medication.ID, &medication.Name, &medication.MaxDailyDose)
	if err != nil {
		return dosing.Medication{}, mapError(err)
	}
	return medication, nil
}

// ListMedications returns every directory entry ordered by id.
func (r *MedicationRepository) ListMedications(ctx context.Context) ([]dosing.Medication, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, name, max_daily_dose FROM medications ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var medications []dosing.Medication
	for rows.Next() {
		var medication dosing.Medication
		if err := rows.Scan(&medication.ID, &medication.Name, &medication.MaxDailyDose); err != nil {
			return nil, mapError(err)
		}
		medications = append(medications, medication)
	}
	return medications, rows.Err()
}

// DeleteMedication removes a directory entry.
func (r *MedicationRepository) DeleteMedication(ctx context.Context, id string) error {
	result, err := r.store.db.ExecContext(ctx, `DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// Lookup adapts the repository to the dosing.MedicationDirectory interface,
// translating the persistence sentinel to the domain one.
func (r *MedicationRepository) Lookup(ctx context.Context, medicationID string) (dosing.Medication, error) {
	medication, err := r.GetMedication(ctx, medicationID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return dosing.Medication{}, dosing.ErrMedicationNotFound
		}
		return dosing.Medication{}, err
	}
	return medication, nil
}
