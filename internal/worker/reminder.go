package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"milklog/internal/core"
	"milklog/internal/storage"
)

// ReminderPublisher emits a reminder-due event for downstream notifiers.
// Satisfied by *amqp.Client.
type ReminderPublisher interface {
	PublishReminderDue(ctx context.Context, userID int64, name, timeOfDay string) error
}

// ReminderWorker fires at most one reminder per user per day, once the user's
// configured time of day has passed.
type ReminderWorker struct {
	storage   *storage.Repository
	publisher ReminderPublisher
	clock     core.Clock
}

func NewReminderWorker(storage *storage.Repository, publisher ReminderPublisher, clock core.Clock) *ReminderWorker {
	if clock == nil {
		clock = core.SystemClock
	}
	return &ReminderWorker{
		storage:   storage,
		publisher: publisher,
		clock:     clock,
	}
}

// Tick publishes reminders due at the current clock reading. Users whose
// reminder already fired today are skipped, so a missed minute is caught up
// on the next tick rather than lost.
func (w *ReminderWorker) Tick(ctx context.Context) error {
	now := w.clock()
	today := core.Date{Time: now}
	timeOfDay := now.Format("15:04")

	users, err := w.storage.ListReminderUsers(ctx, today)
	if err != nil {
		return fmt.Errorf("list reminder users: %w", err)
	}

	for _, user := range users {
		// "HH:MM" strings order the same way the clock does.
		if user.ReminderTime > timeOfDay {
			continue
		}

		if err := w.publisher.PublishReminderDue(ctx, user.ID, user.Name, user.ReminderTime); err != nil {
			slog.ErrorContext(ctx, "Failed to publish reminder",
				"user_id", user.ID,
				"error", err)
			continue
		}

		if err := w.storage.MarkReminderFired(ctx, user.ID, today); err != nil {
			slog.ErrorContext(ctx, "Failed to mark reminder fired",
				"user_id", user.ID,
				"error", err)
			continue
		}

		slog.InfoContext(ctx, "Reminder published",
			"user_id", user.ID,
			"time_of_day", user.ReminderTime)
	}

	return nil
}

// Run ticks once a minute until ctx is done.
func (w *ReminderWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				slog.ErrorContext(ctx, "Reminder tick failed", "error", err)
			}
		}
	}
}
