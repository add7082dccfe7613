// Package worker runs the background jobs of the delivery tracker: exporting
// monthly statements to Google Sheets and firing daily reminders.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"milklog/internal/amqp"
	"milklog/internal/core"
	"milklog/internal/sheets"
	"milklog/internal/storage"
)

// ExportWorker keeps the Google Sheets statement ledger in step with SQLite.
type ExportWorker struct {
	storage   *storage.Repository
	writer    sheets.StatementWriter
	clock     core.Clock
	batchSize int
}

func NewExportWorker(storage *storage.Repository, writer sheets.StatementWriter, clock core.Clock, batchSize int) *ExportWorker {
	if clock == nil {
		clock = core.SystemClock
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &ExportWorker{
		storage:   storage,
		writer:    writer,
		clock:     clock,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single statement sync message from AMQP.
func (w *ExportWorker) HandleSyncMessage(ctx context.Context, msg *amqp.StatementSyncMessage) error {
	slog.InfoContext(ctx, "Processing statement sync message",
		"user_id", msg.UserID,
		"year", msg.Year,
		"month", msg.Month)

	month := core.Month{Year: msg.Year, Month: msg.Month}
	if err := month.Validate(); err != nil {
		// A malformed month can never succeed; drop it instead of requeueing.
		slog.ErrorContext(ctx, "Discarding sync message with invalid month",
			"user_id", msg.UserID,
			"year", msg.Year,
			"month", msg.Month)
		return nil
	}

	if err := w.exportStatement(ctx, msg.UserID, month); err != nil {
		return fmt.Errorf("export statement: %w", err)
	}

	return nil
}

// ProcessDirtyStatements exports any months marked dirty that AMQP delivery
// may have missed. This is a backup mechanism in case messages are lost.
func (w *ExportWorker) ProcessDirtyStatements(ctx context.Context) error {
	marks, err := w.storage.ListDirtyStatements(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list dirty statements: %w", err)
	}

	if len(marks) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing dirty statements", "count", len(marks))

	for _, mark := range marks {
		if err := w.exportStatement(ctx, mark.UserID, mark.Month); err != nil {
			slog.ErrorContext(ctx, "Failed to export statement",
				"user_id", mark.UserID,
				"month", mark.Month.String(),
				"error", err)
			continue
		}
	}

	return nil
}

// StartupCheck drains the dirty backlog at worker startup so months touched
// during worker downtime still reach the spreadsheet.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	marks, err := w.storage.ListDirtyStatements(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list dirty statements for startup check: %w", err)
	}

	if len(marks) == 0 {
		slog.InfoContext(ctx, "No dirty statements found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found dirty statements on startup, processing...",
		"count", len(marks))

	successCount := 0
	errorCount := 0

	for _, mark := range marks {
		if err := w.exportStatement(ctx, mark.UserID, mark.Month); err != nil {
			slog.ErrorContext(ctx, "Failed to export statement during startup",
				"user_id", mark.UserID,
				"month", mark.Month.String(),
				"error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(marks),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

// RunSweep re-exports dirty statements on a fixed interval until ctx is done.
func (w *ExportWorker) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessDirtyStatements(ctx); err != nil {
				slog.ErrorContext(ctx, "Dirty statement sweep failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportStatement(ctx context.Context, userID int64, month core.Month) error {
	user, err := w.storage.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user from storage: %w", err)
	}
	if user == nil {
		// The account is gone; the mark can never export.
		slog.WarnContext(ctx, "Dropping statement for unknown user", "user_id", userID)
		return w.storage.MarkStatementExported(ctx, userID, month)
	}

	entries, err := w.storage.ListMonthEntries(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("list month entries: %w", err)
	}

	price, err := w.storage.GetMonthlyPrice(ctx, userID, month)
	if err != nil {
		return fmt.Errorf("get monthly price: %w", err)
	}
	if price == 0 {
		price, err = w.storage.GetGlobalPrice(ctx)
		if err != nil {
			return fmt.Errorf("get global price: %w", err)
		}
	}

	ledger := core.BuildLedger(month, entries, price, w.clock)

	row := sheets.StatementRow{
		UserID:        userID,
		UserName:      user.Name,
		Year:          month.Year,
		Month:         month.Month,
		MilkDays:      ledger.Summary.MilkDays,
		TotalQuantity: ledger.Summary.TotalQuantity,
		Price:         ledger.Summary.Price,
		TotalBill:     ledger.Summary.TotalBill,
	}

	if err := w.writer.UpsertStatement(ctx, row); err != nil {
		return fmt.Errorf("upsert statement row: %w", err)
	}

	if err := w.storage.MarkStatementExported(ctx, userID, month); err != nil {
		slog.ErrorContext(ctx, "Failed to mark statement exported",
			"user_id", userID,
			"month", month.String(),
			"error", err)
		// The export itself worked; the next sweep will retry the mark.
	}

	slog.InfoContext(ctx, "Successfully exported statement",
		"user_id", userID,
		"month", month.String(),
		"milk_days", row.MilkDays,
		"total_bill", row.TotalBill)

	return nil
}
