package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/dose-scheduler/internal/conflict"
	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/label"
	"github.com/example/dose-scheduler/internal/persistence"
	"github.com/example/dose-scheduler/internal/recurrence"
	"github.com/example/dose-scheduler/internal/timeofday"
)

// ScheduleService orchestrates validation, persistence and conflict analysis
// for schedule operations. Every mutation re-plans reminders for the changed
// schedule; already-materialized PENDING events of a changed or deleted
// schedule are deliberately left in the log so dose history stays intact.
type ScheduleService struct {
	schedules   ScheduleStore
	medications dosing.MedicationDirectory
	expander    *recurrence.Expander
	detector    *conflict.Detector
	reminders   ReminderPlanner
	warnings    *warningCache
	idGenerator func() string
	now         func() time.Time
	horizonDays int
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations. A zero or
// negative horizonDays defaults to 7.
func NewScheduleService(schedules ScheduleStore, medications dosing.MedicationDirectory, expander *recurrence.Expander, reminders ReminderPlanner, idGenerator func() string, now func() time.Time, horizonDays int, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if expander == nil {
		expander = recurrence.NewExpander(nil)
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &ScheduleService{
		schedules:   schedules,
		medications: medications,
		expander:    expander,
		detector:    conflict.NewDetector(expander, nil),
		reminders:   reminders,
		warnings:    newWarningCache(30*time.Second, 128, now),
		idGenerator: idGenerator,
		now:         now,
		horizonDays: horizonDays,
		logger:      defaultLogger(logger),
	}
}

// CreateSchedule validates the input, persists the schedule, and returns the
// conflicts its addition introduces over the service horizon.
func (s *ScheduleService) CreateSchedule(ctx context.Context, input ScheduleInput) (dosing.Schedule, []conflict.Conflict, error) {
	if s == nil || s.schedules == nil {
		return dosing.Schedule{}, nil, fmt.Errorf("schedule repository not configured")
	}
	logger := serviceLogger(ctx, s.logger, "schedule", "create")

	if vErr := validateScheduleInput(input); vErr.HasErrors() {
		return dosing.Schedule{}, nil, vErr
	}

	createdAt := s.now()
	schedule := dosing.Schedule{
		ID:             s.idGenerator(),
		Title:          strings.TrimSpace(input.Title),
		Times:          append([]string(nil), input.Times...),
		RRule:          input.RRule,
		Timezone:       input.Timezone,
		Start:          input.Start,
		End:            input.End,
		LockoutMinutes: input.LockoutMinutes,
		Snooze:         input.Snooze,
		DoseItems:      append([]dosing.DoseItem(nil), input.DoseItems...),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return dosing.Schedule{}, nil, mapScheduleRepoError(err)
	}
	s.warnings.Invalidate()

	warnings, err := s.conflictsFor(ctx, schedule.ID)
	if err != nil {
		logger.Warn("conflict analysis failed after create", "error", err, "schedule_id", schedule.ID)
	}

	s.planReminders(ctx, logger, schedule)
	logger.Info("schedule created", "schedule_id", schedule.ID, "conflicts", len(warnings))
	return schedule, warnings, nil
}

// UpdateSchedule validates and persists changes to an existing schedule.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, scheduleID string, input ScheduleInput) (dosing.Schedule, []conflict.Conflict, error) {
	if s == nil || s.schedules == nil {
		return dosing.Schedule{}, nil, fmt.Errorf("schedule repository not configured")
	}
	logger := serviceLogger(ctx, s.logger, "schedule", "update", "schedule_id", scheduleID)

	existing, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return dosing.Schedule{}, nil, mapScheduleRepoError(err)
	}

	if vErr := validateScheduleInput(input); vErr.HasErrors() {
		return dosing.Schedule{}, nil, vErr
	}

	updated := existing
	updated.Title = strings.TrimSpace(input.Title)
	updated.Times = append([]string(nil), input.Times...)
	updated.RRule = input.RRule
	updated.Timezone = input.Timezone
	updated.Start = input.Start
	updated.End = input.End
	updated.LockoutMinutes = input.LockoutMinutes
	updated.Snooze = input.Snooze
	updated.DoseItems = append([]dosing.DoseItem(nil), input.DoseItems...)
	updated.UpdatedAt = s.now()

	if err := s.schedules.UpdateSchedule(ctx, updated); err != nil {
		return dosing.Schedule{}, nil, mapScheduleRepoError(err)
	}
	s.warnings.Invalidate()

	warnings, err := s.conflictsFor(ctx, updated.ID)
	if err != nil {
		logger.Warn("conflict analysis failed after update", "error", err)
	}

	s.planReminders(ctx, logger, updated)
	logger.Info("schedule updated", "conflicts", len(warnings))
	return updated, warnings, nil
}

// DeleteSchedule removes a schedule and cancels its planned reminders.
// Future PENDING events already materialized from it are preserved.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if s == nil || s.schedules == nil {
		return fmt.Errorf("schedule repository not configured")
	}
	logger := serviceLogger(ctx, s.logger, "schedule", "delete", "schedule_id", scheduleID)

	if err := s.schedules.DeleteSchedule(ctx, scheduleID); err != nil {
		return mapScheduleRepoError(err)
	}
	s.warnings.Invalidate()

	if s.reminders != nil {
		if err := s.reminders.CancelReminders(ctx, scheduleID); err != nil {
			logger.Warn("failed to cancel reminders", "error", err)
		}
	}
	logger.Info("schedule deleted")
	return nil
}

// GetSchedule loads one schedule.
func (s *ScheduleService) GetSchedule(ctx context.Context, scheduleID string) (dosing.Schedule, error) {
	if s == nil || s.schedules == nil {
		return dosing.Schedule{}, fmt.Errorf("schedule repository not configured")
	}
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return dosing.Schedule{}, mapScheduleRepoError(err)
	}
	return schedule, nil
}

// ListSchedules returns every schedule.
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]dosing.Schedule, error) {
	if s == nil || s.schedules == nil {
		return nil, fmt.Errorf("schedule repository not configured")
	}
	schedules, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}
	return schedules, nil
}

// ExpandSchedule expands one schedule over an explicit range, for calendar
// display or the notification collaborator. Parse errors are fatal here
// because the caller asked for this schedule directly.
func (s *ScheduleService) ExpandSchedule(ctx context.Context, scheduleID string, rangeStart, rangeEnd time.Time) ([]dosing.Occurrence, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.expander.Expand(schedule, rangeStart, rangeEnd)
}

// DetectConflicts analyses all schedules over [rangeStart, rangeEnd]. Results
// for identical ranges are served from a short lived cache until the next
// schedule mutation.
func (s *ScheduleService) DetectConflicts(ctx context.Context, rangeStart, rangeEnd time.Time) (ConflictReport, error) {
	if s == nil || s.schedules == nil {
		return ConflictReport{}, fmt.Errorf("schedule repository not configured")
	}

	cacheKey := rangeStart.UTC().Format(time.RFC3339) + "/" + rangeEnd.UTC().Format(time.RFC3339)
	if cached, ok := s.warnings.Get(cacheKey); ok {
		return cached, nil
	}

	schedules, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return ConflictReport{}, mapScheduleRepoError(err)
	}

	report, err := s.detector.Detect(ctx, schedules, s.medications, rangeStart, rangeEnd)
	if err != nil {
		return ConflictReport{}, err
	}
	result := ConflictReport{Conflicts: report.Conflicts, ScheduleErrors: report.ScheduleErrors}
	s.warnings.Store(cacheKey, result)
	return result, nil
}

func (s *ScheduleService) conflictsFor(ctx context.Context, scheduleID string) ([]conflict.Conflict, error) {
	now := s.now()
	report, err := s.DetectConflicts(ctx, now, now.AddDate(0, 0, s.horizonDays))
	if err != nil {
		return nil, err
	}
	var mine []conflict.Conflict
	for _, c := range report.Conflicts {
		for _, id := range c.ScheduleIDs {
			if id == scheduleID {
				mine = append(mine, c)
				break
			}
		}
	}
	return mine, nil
}

func (s *ScheduleService) planReminders(ctx context.Context, logger *slog.Logger, schedule dosing.Schedule) {
	if s.reminders == nil {
		return
	}
	now := s.now()
	occurrences, err := s.expander.Expand(schedule, now, now.AddDate(0, 0, s.horizonDays))
	if err != nil {
		logger.Warn("failed to expand schedule for reminders", "error", err)
		return
	}
	groupLabel, err := label.Build(ctx, schedule.DoseItems, s.medications)
	if err != nil {
		logger.Warn("failed to build reminder label", "error", err)
		groupLabel = ""
	}
	if err := s.reminders.PlanReminders(ctx, schedule, occurrences, groupLabel); err != nil {
		logger.Warn("failed to plan reminders", "error", err)
	}
}

func validateScheduleInput(input ScheduleInput) *ValidationError {
	vErr := &ValidationError{}

	if len(input.Times) == 0 {
		vErr.add("times", "at least one time of day is required")
	}
	for _, entry := range input.Times {
		if _, err := timeofday.Parse(entry); err != nil {
			vErr.add("times", fmt.Sprintf("invalid time of day %q", entry))
			break
		}
	}

	if strings.TrimSpace(input.RRule) == "" {
		vErr.add("rrule", "recurrence rule is required")
	}

	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End != nil && !input.Start.IsZero() && input.End.Before(input.Start) {
		vErr.add("end", "end must not be before start")
	}

	if len(input.DoseItems) == 0 {
		vErr.add("dose_items", "at least one dose item is required")
	}
	for _, item := range input.DoseItems {
		if item.MedicationID == "" {
			vErr.add("dose_items", "dose item medication id is required")
			break
		}
		if item.Quantity <= 0 {
			vErr.add("dose_items", "dose item quantity must be positive")
			break
		}
	}

	if input.LockoutMinutes < 0 {
		vErr.add("lockout_minutes", "lockout must not be negative")
	}
	if input.Snooze.IntervalMinutes < 0 || input.Snooze.MaxSnoozes < 0 {
		vErr.add("snooze", "snooze policy must not be negative")
	}

	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			vErr.add("timezone", fmt.Sprintf("unknown timezone %q", input.Timezone))
		}
	}

	return vErr
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("schedule", "schedule violates storage constraints")
		return vErr
	}
	return err
}
