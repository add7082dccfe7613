package sheets

import (
	"context"
	"log/slog"
)

// LogWriter is the fallback StatementWriter when no spreadsheet is
// configured. It logs each row so dirty marks still drain.
type LogWriter struct{}

var _ StatementWriter = LogWriter{}

func (LogWriter) UpsertStatement(ctx context.Context, row StatementRow) error {
	slog.InfoContext(ctx, "Statement computed (Sheets export disabled)",
		"key", row.Key(),
		"user", row.UserName,
		"milk_days", row.MilkDays,
		"total_quantity", row.TotalQuantity,
		"price", row.Price,
		"total_bill", row.TotalBill)
	return nil
}
