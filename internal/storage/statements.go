package storage

import (
	"context"
	"fmt"

	"milklog/internal/core"
)

// StatementMark identifies one (user, month) statement pending export.
type StatementMark struct {
	UserID int64
	Month  core.Month
}

// MarkStatementDirty flags a (user, month) statement as changed since its
// last export. The periodic sweep in the worker picks up dirty marks even
// when the AMQP message for the change was lost.
func (r *Repository) MarkStatementDirty(ctx context.Context, userID int64, month core.Month) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO statement_marks (user_id, year, month, dirty)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, year, month)
		DO UPDATE SET dirty = 1, updated_at = CURRENT_TIMESTAMP`,
		userID, month.Year, month.Month,
	)
	if err != nil {
		return fmt.Errorf("mark statement dirty: %w", err)
	}
	return nil
}

// ListDirtyStatements returns up to limit statements awaiting export.
func (r *Repository) ListDirtyStatements(ctx context.Context, limit int) ([]StatementMark, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, year, month FROM statement_marks
		WHERE dirty = 1
		ORDER BY updated_at
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list dirty statements: %w", err)
	}
	defer rows.Close()

	var marks []StatementMark
	for rows.Next() {
		var m StatementMark
		if err := rows.Scan(&m.UserID, &m.Month.Year, &m.Month.Month); err != nil {
			return nil, fmt.Errorf("scan statement mark: %w", err)
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statement marks: %w", err)
	}

	return marks, nil
}

// MarkStatementExported clears the dirty flag after a successful export.
func (r *Repository) MarkStatementExported(ctx context.Context, userID int64, month core.Month) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE statement_marks
		SET dirty = 0, exported_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND year = ? AND month = ?`,
		userID, month.Year, month.Month,
	)
	if err != nil {
		return fmt.Errorf("mark statement exported: %w", err)
	}
	return nil
}
