package storage

import (
	"context"
	"database/sql"
	"fmt"

	"milklog/internal/core"
)

// DefaultUserID is the seeded user every request acts as when PIN auth is off.
const DefaultUserID int64 = 1

func scanUser(row interface{ Scan(...any) error }) (*core.User, error) {
	var (
		user      core.User
		pinDigest sql.NullString
	)
	err := row.Scan(&user.ID, &user.Name, &pinDigest, &user.ReminderEnabled, &user.ReminderTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.HasPIN = pinDigest.Valid
	return &user, nil
}

const userColumns = "id, name, pin_digest, reminder_enabled, reminder_time"

// CreateUser inserts a new user. The unique indexes on name and pin_digest
// reject duplicates atomically; violations come back as ErrNameTaken or
// ErrPINTaken and no row is created.
func (r *Repository) CreateUser(ctx context.Context, name string, pinDigest string) (*core.User, error) {
	var digest sql.NullString
	if pinDigest != "" {
		digest = sql.NullString{String: pinDigest, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (name, pin_digest) VALUES (?, ?)",
		name, digest,
	)
	if isUniqueViolation(err, "users.name") {
		return nil, ErrNameTaken
	}
	if isUniqueViolation(err, "users.pin_digest") {
		return nil, ErrPINTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &core.User{ID: id, Name: name, HasPIN: digest.Valid, ReminderTime: "07:00"}, nil
}

// GetUserByID returns the user, or nil when not found.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetUserByName returns the user with the given display name, or nil.
func (r *Repository) GetUserByName(ctx context.Context, name string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE name = ?", name)
	return scanUser(row)
}

// GetUserByPINDigest resolves a login PIN digest to a user, or nil.
func (r *Repository) GetUserByPINDigest(ctx context.Context, digest string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE pin_digest = ?", digest)
	return scanUser(row)
}

// SetReminder updates a user's delivery-reminder flag and time of day.
func (r *Repository) SetReminder(ctx context.Context, userID int64, enabled bool, timeOfDay string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET reminder_enabled = ?, reminder_time = ? WHERE id = ?",
		enabled, timeOfDay, userID,
	)
	if err != nil {
		return fmt.Errorf("set reminder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set reminder: user %d not found", userID)
	}
	return nil
}

// ListReminderUsers returns users with reminders enabled that have not fired
// yet on the given day.
func (r *Repository) ListReminderUsers(ctx context.Context, day core.Date) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reminder_enabled = 1 AND reminder_last_fired <> ?",
		day.ISO(),
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder users: %w", err)
	}

	return users, nil
}

// MarkReminderFired records that a user's reminder went out on the given day,
// so the ticker fires at most once per user per day.
func (r *Repository) MarkReminderFired(ctx context.Context, userID int64, day core.Date) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET reminder_last_fired = ? WHERE id = ?",
		day.ISO(), userID,
	)
	if err != nil {
		return fmt.Errorf("mark reminder fired: %w", err)
	}
	return nil
}
