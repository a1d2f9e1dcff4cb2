package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/label"
	"github.com/example/dose-scheduler/internal/persistence"
	"github.com/example/dose-scheduler/internal/recurrence"
)

// ReconcilerService keeps the event log synchronized with the schedules over
// a rolling horizon: every occurrence in the horizon gets exactly one
// PENDING event record, existing records are never touched. Running it again
// with unchanged schedules creates nothing, so it is safe to invoke from
// both app startup and a background refresh.
type ReconcilerService struct {
	schedules   ScheduleStore
	medications dosing.MedicationDirectory
	events      EventLog
	expander    *recurrence.Expander
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewReconcilerService wires dependencies for reconciliation.
func NewReconcilerService(schedules ScheduleStore, medications dosing.MedicationDirectory, events EventLog, expander *recurrence.Expander, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReconcilerService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if expander == nil {
		expander = recurrence.NewExpander(nil)
	}
	return &ReconcilerService{
		schedules:   schedules,
		medications: medications,
		events:      events,
		expander:    expander,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Reconcile materializes a PENDING event for every occurrence in
// [now, now+horizonDays] that the log does not already contain. Malformed
// schedules are skipped and reported in the result; an event-log failure
// aborts the remaining work without rolling back records already created.
func (r *ReconcilerService) Reconcile(ctx context.Context, horizonDays int) (ReconcileResult, error) {
	if r == nil || r.schedules == nil || r.events == nil {
		return ReconcileResult{}, fmt.Errorf("reconciler not configured")
	}
	if horizonDays <= 0 {
		return ReconcileResult{}, fmt.Errorf("horizon days must be positive, got %d", horizonDays)
	}
	logger := serviceLogger(ctx, r.logger, "reconciler", "reconcile", "horizon_days", horizonDays)

	rangeStart := r.now()
	rangeEnd := rangeStart.AddDate(0, 0, horizonDays)

	existing, err := r.events.GetEventsByDateRange(ctx, rangeStart, rangeEnd)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("fetch existing events: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, record := range existing {
		seen[record.IdentityKey()] = struct{}{}
	}

	schedules, err := r.schedules.ListSchedules(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list schedules: %w", err)
	}

	result := ReconcileResult{ScheduleErrors: make(map[string]error)}
	for _, schedule := range schedules {
		occurrences, err := r.expander.Expand(schedule, rangeStart, rangeEnd)
		if err != nil {
			result.ScheduleErrors[schedule.ID] = err
			logger.Warn("skipping malformed schedule", "schedule_id", schedule.ID, "error", err)
			continue
		}
		if len(occurrences) == 0 {
			continue
		}

		// Dose items do not vary per occurrence, so the label is
		// schedule-invariant and built once.
		groupLabel, err := label.Build(ctx, schedule.DoseItems, r.medications)
		if err != nil {
			return result, fmt.Errorf("build label for schedule %s: %w", schedule.ID, err)
		}

		for _, occurrence := range occurrences {
			key := dosing.IdentityKey(occurrence.At, groupLabel)
			if _, ok := seen[key]; ok {
				continue
			}

			createdAt := r.now()
			record := dosing.EventRecord{
				ID:         r.idGenerator(),
				DueAt:      occurrence.At,
				GroupLabel: groupLabel,
				Status:     dosing.EventStatusPending,
				Details: dosing.EventDetails{
					ScheduleID: schedule.ID,
					DoseItems:  append([]dosing.DoseItem(nil), schedule.DoseItems...),
				},
				CreatedAt: createdAt,
				UpdatedAt: createdAt,
			}

			created, err := r.events.CreateEvent(ctx, record)
			if err != nil {
				// A duplicate means a concurrent run won the race on the
				// storage uniqueness constraint; the occurrence is
				// materialized either way.
				if errors.Is(err, persistence.ErrDuplicate) {
					seen[key] = struct{}{}
					continue
				}
				return result, fmt.Errorf("create event for schedule %s at %s: %w", schedule.ID, occurrence.At.Format(time.RFC3339), err)
			}
			seen[key] = struct{}{}
			result.Created = append(result.Created, created)
		}
	}

	logger.Info("reconciliation complete", "created", len(result.Created), "schedule_errors", len(result.ScheduleErrors))
	return result, nil
}
