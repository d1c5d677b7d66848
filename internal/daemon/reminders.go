package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dnacommunity/backend/internal/workshop"

	"github.com/robfig/cron/v3"
)

// ReminderSender is the part of the workshop manager the reminder job needs.
type ReminderSender interface {
	SendReminders(ctx context.Context) (workshop.ReminderResult, error)
}

// ReminderTask runs the workshop reminder scan on a cron schedule such as
// "@every 15m" or "*/15 * * * *".
func ReminderTask(sender ReminderSender, schedule string, logger *slog.Logger) (DaemonFunc, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	return func(ctx context.Context, name string) error {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		c.Schedule(sched, cron.FuncJob(func() {
			if _, err := sender.SendReminders(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Failed to send workshop reminders", "daemon", name, "error", err)
			}
		}))
		c.Start()

		<-ctx.Done()
		logger.Info("Daemon shutting down", "daemon", name)
		<-c.Stop().Done()
		return nil
	}, nil
}
