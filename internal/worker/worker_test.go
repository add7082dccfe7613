package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"milklog/internal/amqp"
	"milklog/internal/core"
	"milklog/internal/sheets"
	"milklog/internal/storage"
)

type fakeWriter struct {
	rows []sheets.StatementRow
	err  error
}

func (f *fakeWriter) UpsertStatement(ctx context.Context, row sheets.StatementRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

type firedReminder struct {
	userID    int64
	timeOfDay string
}

type fakeReminderPublisher struct {
	messages []firedReminder
	err      error
}

func (f *fakeReminderPublisher) PublishReminderDue(ctx context.Context, userID int64, name, timeOfDay string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, firedReminder{userID: userID, timeOfDay: timeOfDay})
	return nil
}

func june15() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "milklog.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedJune(t *testing.T, repo *storage.Repository) {
	t.Helper()
	ctx := context.Background()
	uid := storage.DefaultUserID
	june := core.Month{Year: 2024, Month: 6}

	if err := repo.UpsertMonthlyPrice(ctx, uid, june, 80); err != nil {
		t.Fatalf("UpsertMonthlyPrice: %v", err)
	}
	if err := repo.UpsertEntry(ctx, uid, core.NewDate(2024, 6, 5), 1); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := repo.UpsertEntry(ctx, uid, core.NewDate(2024, 6, 10), 2); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
}

func TestHandleSyncMessageExportsStatement(t *testing.T) {
	repo := newTestRepo(t)
	seedJune(t, repo)
	ctx := context.Background()
	uid := storage.DefaultUserID

	if err := repo.MarkStatementDirty(ctx, uid, core.Month{Year: 2024, Month: 6}); err != nil {
		t.Fatalf("MarkStatementDirty: %v", err)
	}

	writer := &fakeWriter{}
	w := NewExportWorker(repo, writer, june15, 20)

	msg := amqp.NewStatementSyncMessage(uid, 2024, 6)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}

	if len(writer.rows) != 1 {
		t.Fatalf("exported %d rows, want 1", len(writer.rows))
	}
	row := writer.rows[0]
	if row.MilkDays != 2 || row.TotalQuantity != 3 || row.Price != 80 || row.TotalBill != 240 {
		t.Errorf("row = %+v", row)
	}
	if row.UserName == "" {
		t.Error("row is missing the user name")
	}

	marks, err := repo.ListDirtyStatements(ctx, 10)
	if err != nil {
		t.Fatalf("ListDirtyStatements: %v", err)
	}
	if len(marks) != 0 {
		t.Errorf("dirty marks after export = %d, want 0", len(marks))
	}
}

func TestHandleSyncMessageInvalidMonthDropped(t *testing.T) {
	repo := newTestRepo(t)
	writer := &fakeWriter{}
	w := NewExportWorker(repo, writer, june15, 20)

	msg := amqp.NewStatementSyncMessage(storage.DefaultUserID, 2024, 13)
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if len(writer.rows) != 0 {
		t.Errorf("exported %d rows for an invalid month", len(writer.rows))
	}
}

func TestProcessDirtyStatements(t *testing.T) {
	repo := newTestRepo(t)
	seedJune(t, repo)
	ctx := context.Background()
	uid := storage.DefaultUserID
	june := core.Month{Year: 2024, Month: 6}

	if err := repo.MarkStatementDirty(ctx, uid, june); err != nil {
		t.Fatalf("MarkStatementDirty: %v", err)
	}

	writer := &fakeWriter{}
	w := NewExportWorker(repo, writer, june15, 20)

	if err := w.ProcessDirtyStatements(ctx); err != nil {
		t.Fatalf("ProcessDirtyStatements: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("exported %d rows, want 1", len(writer.rows))
	}

	// A second sweep finds nothing to do.
	if err := w.ProcessDirtyStatements(ctx); err != nil {
		t.Fatalf("ProcessDirtyStatements: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Errorf("second sweep re-exported a clean statement")
	}
}

func TestProcessDirtyStatementsKeepsMarkOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	seedJune(t, repo)
	ctx := context.Background()
	uid := storage.DefaultUserID
	june := core.Month{Year: 2024, Month: 6}

	if err := repo.MarkStatementDirty(ctx, uid, june); err != nil {
		t.Fatalf("MarkStatementDirty: %v", err)
	}

	writer := &fakeWriter{err: errors.New("sheets unavailable")}
	w := NewExportWorker(repo, writer, june15, 20)

	if err := w.ProcessDirtyStatements(ctx); err != nil {
		t.Fatalf("ProcessDirtyStatements: %v", err)
	}

	marks, err := repo.ListDirtyStatements(ctx, 10)
	if err != nil {
		t.Fatalf("ListDirtyStatements: %v", err)
	}
	if len(marks) != 1 {
		t.Fatalf("dirty marks after failed export = %d, want 1", len(marks))
	}

	// Once the writer recovers, the next sweep drains the mark.
	writer.err = nil
	if err := w.ProcessDirtyStatements(ctx); err != nil {
		t.Fatalf("ProcessDirtyStatements: %v", err)
	}
	marks, err = repo.ListDirtyStatements(ctx, 10)
	if err != nil {
		t.Fatalf("ListDirtyStatements: %v", err)
	}
	if len(marks) != 0 {
		t.Errorf("dirty marks after retry = %d, want 0", len(marks))
	}
}

func TestExportFallsBackToGlobalPrice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := storage.DefaultUserID

	if err := repo.UpsertGlobalPrice(ctx, 50); err != nil {
		t.Fatalf("UpsertGlobalPrice: %v", err)
	}
	if err := repo.UpsertEntry(ctx, uid, core.NewDate(2024, 6, 5), 2); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}

	writer := &fakeWriter{}
	w := NewExportWorker(repo, writer, june15, 20)

	msg := amqp.NewStatementSyncMessage(uid, 2024, 6)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("exported %d rows, want 1", len(writer.rows))
	}
	if got := writer.rows[0].TotalBill; got != 100 {
		t.Errorf("TotalBill = %d, want 100", got)
	}
}

func TestReminderTickFiresOncePerDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := storage.DefaultUserID

	if err := repo.SetReminder(ctx, uid, true, "07:00"); err != nil {
		t.Fatalf("SetReminder: %v", err)
	}

	now := time.Date(2024, 6, 15, 6, 59, 0, 0, time.UTC)
	pub := &fakeReminderPublisher{}
	w := NewReminderWorker(repo, pub, func() time.Time { return now })

	// Before the configured time nothing fires.
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("fired %d reminders before 07:00", len(pub.messages))
	}

	// At the configured time the reminder goes out once.
	now = time.Date(2024, 6, 15, 7, 0, 0, 0, time.UTC)
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("fired %d reminders at 07:00, want 1", len(pub.messages))
	}
	if pub.messages[0].timeOfDay != "07:00" {
		t.Errorf("timeOfDay = %q", pub.messages[0].timeOfDay)
	}

	// Later ticks the same day stay quiet.
	now = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("reminder fired twice on the same day")
	}

	// The next day it fires again.
	now = time.Date(2024, 6, 16, 7, 5, 0, 0, time.UTC)
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("fired %d reminders over two days, want 2", len(pub.messages))
	}
}

func TestReminderTickSkipsDisabledUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// The seeded user has reminders off by default.
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	pub := &fakeReminderPublisher{}
	w := NewReminderWorker(repo, pub, func() time.Time { return now })

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Errorf("fired %d reminders with reminders disabled", len(pub.messages))
	}
}

func TestReminderTickKeepsUserOnPublishFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	uid := storage.DefaultUserID

	if err := repo.SetReminder(ctx, uid, true, "07:00"); err != nil {
		t.Fatalf("SetReminder: %v", err)
	}

	now := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	pub := &fakeReminderPublisher{err: errors.New("broker down")}
	w := NewReminderWorker(repo, pub, func() time.Time { return now })

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// The fired marker must not advance, so the next tick retries.
	pub.err = nil
	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("fired %d reminders after broker recovery, want 1", len(pub.messages))
	}
}
