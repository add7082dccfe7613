package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"milklog/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNameTaken and ErrPINTaken are raised from the users.name and
	// users.pin_digest unique indexes, so concurrent registrations cannot
	// both slip past a read-then-write check.
	ErrNameTaken = errors.New("display name already taken")
	ErrPINTaken  = errors.New("pin already in use")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// UpsertEntry records a delivery quantity for one (user, day) in a single
// statement keyed on the natural key. Repeating the call with the same
// quantity leaves the row unchanged.
func (r *Repository) UpsertEntry(ctx context.Context, userID int64, day core.Date, quantity int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entries (user_id, day, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, day)
		DO UPDATE SET quantity = excluded.quantity, updated_at = CURRENT_TIMESTAMP`,
		userID, day.ISO(), quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	slog.DebugContext(ctx, "Entry upserted",
		"user_id", userID,
		"day", day.ISO(),
		"quantity", quantity)

	return nil
}

// DeleteEntry removes the entry for one (user, day). A missing row is not an
// error: quantity zero means "no delivery" either way.
func (r *Repository) DeleteEntry(ctx context.Context, userID int64, day core.Date) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM entries WHERE user_id = ? AND day = ?",
		userID, day.ISO(),
	)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// GetEntry returns the recorded quantity for one (user, day), or ok=false
// when no entry exists.
func (r *Repository) GetEntry(ctx context.Context, userID int64, day core.Date) (quantity int, ok bool, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT quantity FROM entries WHERE user_id = ? AND day = ?",
		userID, day.ISO(),
	).Scan(&quantity)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get entry: %w", err)
	}
	return quantity, true, nil
}

// ListMonthEntries returns all entries for a user whose stored day falls in
// the given month, using the half-open range [first-of-month,
// first-of-next-month) so the day index is usable.
func (r *Repository) ListMonthEntries(ctx context.Context, userID int64, month core.Month) ([]core.Entry, error) {
	from, to := month.Bounds()

	rows, err := r.db.QueryContext(ctx, `
		SELECT day, quantity FROM entries
		WHERE user_id = ? AND day >= ? AND day < ?
		ORDER BY day`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list month entries: %w", err)
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		var (
			dayStr   string
			quantity int
		)
		if err := rows.Scan(&dayStr, &quantity); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		day, err := core.ParseDate(dayStr)
		if err != nil {
			return nil, fmt.Errorf("stored day %q: %w", dayStr, err)
		}
		entries = append(entries, core.Entry{UserID: userID, Day: day, Quantity: quantity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// UpsertMonthlyPrice sets the price for one (user, year, month) scope key.
// At most one row exists per key.
func (r *Repository) UpsertMonthlyPrice(ctx context.Context, userID int64, month core.Month, price int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_prices (user_id, year, month, price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, year, month)
		DO UPDATE SET price = excluded.price, updated_at = CURRENT_TIMESTAMP`,
		userID, month.Year, month.Month, price,
	)
	if err != nil {
		return fmt.Errorf("upsert monthly price: %w", err)
	}
	return nil
}

// GetMonthlyPrice returns the price in effect for the scope key, 0 when unset.
func (r *Repository) GetMonthlyPrice(ctx context.Context, userID int64, month core.Month) (int64, error) {
	var price int64
	err := r.db.QueryRowContext(ctx,
		"SELECT price FROM monthly_prices WHERE user_id = ? AND year = ? AND month = ?",
		userID, month.Year, month.Month,
	).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get monthly price: %w", err)
	}
	return price, nil
}

// UpsertGlobalPrice sets the single global price row.
func (r *Repository) UpsertGlobalPrice(ctx context.Context, price int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO global_price (id, price) VALUES (1, ?)
		ON CONFLICT (id)
		DO UPDATE SET price = excluded.price, updated_at = CURRENT_TIMESTAMP`,
		price,
	)
	if err != nil {
		return fmt.Errorf("upsert global price: %w", err)
	}
	return nil
}

// GetGlobalPrice returns the global price, 0 when unset.
func (r *Repository) GetGlobalPrice(ctx context.Context) (int64, error) {
	var price int64
	err := r.db.QueryRowContext(ctx, "SELECT price FROM global_price WHERE id = 1").Scan(&price)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get global price: %w", err)
	}
	return price, nil
}

// isUniqueViolation inspects a sqlite error for a named unique index.
func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}
