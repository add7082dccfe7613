// Package sheets defines the outbound ports for statement export.
package sheets

import "context"

// StatementRow is one exported monthly statement: the scope key plus the
// billing summary derived from the ledger.
type StatementRow struct {
	UserID        int64
	UserName      string
	Year          int
	Month         int
	MilkDays      int
	TotalQuantity int
	Price         int64
	TotalBill     int64
}

// Key is the stable row key used to upsert into the spreadsheet.
func (r StatementRow) Key() string {
	return keyFor(r.UserID, r.Year, r.Month)
}

// StatementWriter upserts one row per (user, year, month) into the export
// target.
type StatementWriter interface {
	UpsertStatement(ctx context.Context, row StatementRow) error
}
