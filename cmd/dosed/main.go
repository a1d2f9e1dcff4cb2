package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/example/dose-scheduler/internal/application"
	"github.com/example/dose-scheduler/internal/config"
	"github.com/example/dose-scheduler/internal/dosing"
	"github.com/example/dose-scheduler/internal/export"
	"github.com/example/dose-scheduler/internal/logging"
	"github.com/example/dose-scheduler/internal/persistence/postgres"
	"github.com/example/dose-scheduler/internal/persistence/sqlite"
	"github.com/example/dose-scheduler/internal/recurrence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(parseLevel(cfg.LogLevel))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	scheduleRepo := sqlite.NewScheduleRepository(store)
	medicationRepo := sqlite.NewMedicationRepository(store)

	var eventLog application.EventLog = sqlite.NewEventRepository(store)
	if cfg.Driver == "postgres" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to apply postgres migrations", "error", err)
			os.Exit(1)
		}
		eventLog = postgres.NewEventRepository(db)
		logger.Info("event log backed by postgres")
	}

	idGenerator := uuid.NewString
	now := time.Now
	expander := recurrence.NewExpander(location)
	reminders := &logReminderPlanner{logger: logger}

	scheduleService := application.NewScheduleService(scheduleRepo, medicationRepo, expander, reminders, idGenerator, now, cfg.HorizonDays, logger)
	reconciler := application.NewReconcilerService(scheduleRepo, medicationRepo, eventLog, expander, idGenerator, now, logger)
	eventService := application.NewEventService(eventLog, scheduleRepo, now, logger)
	feed := export.NewFeed(expander, medicationRepo, now)

	runCycle := func() {
		result, err := reconciler.Reconcile(ctx, cfg.HorizonDays)
		if err != nil {
			logger.Error("reconciliation failed", "error", err, "kind", application.ErrorKind(err))
		} else {
			logger.Info("reconciliation completed", "created", result.Created, "schedule_errors", len(result.ScheduleErrors))
			for scheduleID, expandErr := range result.ScheduleErrors {
				logger.Warn("schedule skipped during reconciliation", "schedule_id", scheduleID, "error", expandErr)
			}
		}

		swept, err := eventService.SweepMissed(ctx, cfg.SweepLookback, cfg.SweepGrace)
		if err != nil {
			logger.Error("missed dose sweep failed", "error", err, "kind", application.ErrorKind(err))
		} else if len(swept) > 0 {
			logger.Info("marked overdue doses as missed", "count", len(swept))
		}

		start := now()
		report, err := scheduleService.DetectConflicts(ctx, start, start.AddDate(0, 0, cfg.HorizonDays))
		if err != nil {
			logger.Error("conflict analysis failed", "error", err, "kind", application.ErrorKind(err))
			return
		}
		for _, c := range report.Conflicts {
			logger.Warn("schedule conflict detected", "kind", string(c.Kind), "message", c.Message, "schedule_ids", strings.Join(c.ScheduleIDs, ","))
		}

		if cfg.FeedPath != "" {
			writeFeed(ctx, logger, feed, scheduleService, cfg.FeedPath, start, start.AddDate(0, 0, cfg.HorizonDays))
		}
	}

	runner := cron.New()
	if _, err := runner.AddFunc(cfg.ReconcileSpec, runCycle); err != nil {
		logger.Error("failed to register reconcile schedule", "error", err, "spec", cfg.ReconcileSpec)
		os.Exit(1)
	}

	runCycle()
	runner.Start()
	logger.Info("dose scheduler running", "reconcile_spec", cfg.ReconcileSpec, "horizon_days", cfg.HorizonDays, "timezone", cfg.Timezone)

	<-ctx.Done()
	cronCtx := runner.Stop()
	<-cronCtx.Done()
	logger.Info("dose scheduler stopped")
}

// writeFeed renders the ICS calendar of upcoming doses to path so external
// calendar clients can pick it up from disk.
func writeFeed(ctx context.Context, logger *slog.Logger, feed *export.Feed, schedules *application.ScheduleService, path string, rangeStart, rangeEnd time.Time) {
	all, err := schedules.ListSchedules(ctx)
	if err != nil {
		logger.Error("failed to list schedules for feed", "error", err, "kind", application.ErrorKind(err))
		return
	}
	payload, skipped, err := feed.Render(ctx, all, rangeStart, rangeEnd)
	if err != nil {
		logger.Error("failed to render feed", "error", err, "kind", application.ErrorKind(err))
		return
	}
	for _, scheduleID := range skipped {
		logger.Warn("schedule skipped in feed", "schedule_id", scheduleID)
	}
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		logger.Error("failed to write feed", "error", err, "path", path)
		return
	}
	logger.Info("feed written", "path", path, "schedules", len(all))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logReminderPlanner surfaces planned reminders through the process log. A
// real notification collaborator would replace this at the composition root.
type logReminderPlanner struct {
	logger *slog.Logger
}

func (p *logReminderPlanner) PlanReminders(ctx context.Context, schedule dosing.Schedule, occurrences []dosing.Occurrence, label string) error {
	p.logger.Info("reminders planned", "schedule_id", schedule.ID, "occurrences", len(occurrences), "label", label)
	return nil
}

func (p *logReminderPlanner) CancelReminders(ctx context.Context, scheduleID string) error {
	p.logger.Info("reminders canceled", "schedule_id", scheduleID)
	return nil
}
