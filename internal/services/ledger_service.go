// Package services orchestrates ledger operations across the record store and
// the message broker.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"milklog/internal/config"
	"milklog/internal/core"
	"milklog/internal/storage"
)

// StatementPublisher publishes statement re-export requests. Satisfied by
// *amqp.Client; nil disables publishing.
type StatementPublisher interface {
	PublishStatementSync(ctx context.Context, userID int64, year, month int) error
}

// LedgerService implements the monthly ledger operations: month reads, the
// day-entry and price upserts behind the current-month edit window, and the
// per-user reminder settings.
type LedgerService struct {
	repo       *storage.Repository
	publisher  StatementPublisher
	priceScope string
	clock      core.Clock
}

func NewLedgerService(repo *storage.Repository, publisher StatementPublisher, priceScope string, clock core.Clock) *LedgerService {
	if clock == nil {
		clock = core.SystemClock
	}
	return &LedgerService{
		repo:       repo,
		publisher:  publisher,
		priceScope: priceScope,
		clock:      clock,
	}
}

// GetMonth derives the ledger for one user and month: recorded days, the
// price in effect, the billing summary and the editable flag. Reads are
// permitted for any month.
func (s *LedgerService) GetMonth(ctx context.Context, userID int64, month core.Month) (core.Ledger, error) {
	if err := month.Validate(); err != nil {
		return core.Ledger{}, err
	}

	entries, err := s.repo.ListMonthEntries(ctx, userID, month)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("list entries: %w", err)
	}

	price, err := s.priceFor(ctx, userID, month)
	if err != nil {
		return core.Ledger{}, err
	}

	return core.BuildLedger(month, entries, price, s.clock), nil
}

// SetDay records, overwrites or removes the entry for one (user, date).
// Writes outside the current calendar month are rejected with
// core.ErrReadOnlyMonth. Quantity zero deletes; absence is not an error.
func (s *LedgerService) SetDay(ctx context.Context, userID int64, day core.Date, quantity int) error {
	if err := core.ValidateQuantity(quantity); err != nil {
		return err
	}

	month := core.MonthOf(day.Time)
	if !month.Editable(s.clock) {
		return core.ErrReadOnlyMonth
	}

	if quantity == 0 {
		if err := s.repo.DeleteEntry(ctx, userID, day); err != nil {
			return err
		}
	} else {
		if err := s.repo.UpsertEntry(ctx, userID, day, quantity); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "Day entry updated",
		"user_id", userID,
		"day", day.ISO(),
		"quantity", quantity)

	s.statementChanged(ctx, userID, month)
	return nil
}

// ToggleDay flips day n of the current month between one bottle and absent.
// The form-based UI posts day numbers instead of full dates.
func (s *LedgerService) ToggleDay(ctx context.Context, userID int64, dayOfMonth int) error {
	now := s.clock()
	month := core.MonthOf(now)

	day := core.NewDate(month.Year, month.Month, dayOfMonth)
	if !day.In(month) {
		return fmt.Errorf("%w: day %d", core.ErrInvalidDate, dayOfMonth)
	}

	_, exists, err := s.repo.GetEntry(ctx, userID, day)
	if err != nil {
		return err
	}

	quantity := 1
	if exists {
		quantity = 0
	}
	return s.SetDay(ctx, userID, day, quantity)
}

// SetPrice upserts the price for the current scope key: the current calendar
// month in monthly scope, the single shared row in global scope. Negative
// prices are rejected.
func (s *LedgerService) SetPrice(ctx context.Context, userID int64, price int64) error {
	if price < 0 {
		return fmt.Errorf("%w: %d", core.ErrNegativePrice, price)
	}

	month := core.MonthOf(s.clock())

	switch s.priceScope {
	case config.PriceScopeGlobal:
		if err := s.repo.UpsertGlobalPrice(ctx, price); err != nil {
			return err
		}
	default:
		if err := s.repo.UpsertMonthlyPrice(ctx, userID, month, price); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "Price updated",
		"user_id", userID,
		"year", month.Year,
		"month", month.Month,
		"price", price)

	s.statementChanged(ctx, userID, month)
	return nil
}

// Reminder returns a user's delivery-reminder settings.
func (s *LedgerService) Reminder(ctx context.Context, userID int64) (enabled bool, timeOfDay string, err error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if user == nil {
		return false, "", fmt.Errorf("user %d not found", userID)
	}
	return user.ReminderEnabled, user.ReminderTime, nil
}

// SetReminder updates a user's delivery-reminder flag and time of day.
func (s *LedgerService) SetReminder(ctx context.Context, userID int64, enabled bool, timeOfDay string) error {
	normalized, err := core.NormalizeReminderTime(timeOfDay)
	if err != nil {
		return err
	}
	return s.repo.SetReminder(ctx, userID, enabled, normalized)
}

func (s *LedgerService) priceFor(ctx context.Context, userID int64, month core.Month) (int64, error) {
	switch s.priceScope {
	case config.PriceScopeGlobal:
		return s.repo.GetGlobalPrice(ctx)
	default:
		return s.repo.GetMonthlyPrice(ctx, userID, month)
	}
}

// statementChanged marks the statement dirty and nudges the export worker.
// The dirty mark is the durable record; a failed publish only delays the
// export until the periodic sweep.
func (s *LedgerService) statementChanged(ctx context.Context, userID int64, month core.Month) {
	if err := s.repo.MarkStatementDirty(ctx, userID, month); err != nil {
		slog.ErrorContext(ctx, "Failed to mark statement dirty",
			"user_id", userID, "error", err)
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStatementSync(ctx, userID, month.Year, month.Month); err != nil {
		slog.ErrorContext(ctx, "Failed to publish statement sync",
			"user_id", userID, "error", err)
	}
}
