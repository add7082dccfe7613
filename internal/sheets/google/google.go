// Package google exports monthly statements to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "milklog/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base sheet name without year; rows for 2024 land on "2024 <base>".
	sheetBase string
}

var _ ports.StatementWriter = (*Client)(nil)

// New creates a Sheets statement writer for the given spreadsheet.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Milk"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

func (c *Client) sheetFor(year int) string {
	return fmt.Sprintf("%d %s", year, c.sheetBase)
}

// UpsertStatement writes one statement row keyed by column A. An existing row
// for the same (user, year, month) is overwritten in place; otherwise the row
// is appended below the last one.
func (c *Client) UpsertStatement(ctx context.Context, row ports.StatementRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.sheetFor(row.Year)
	key := row.Key()

	// Find an existing row for this key in column A.
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read keys from %s: %w", sheet, err)
	}

	targetRow := len(resp.Values) + 1
	for i, cells := range resp.Values {
		if len(cells) > 0 && fmt.Sprint(cells[0]) == key {
			targetRow = i + 1
			break
		}
	}

	values := &gsheet.ValueRange{
		Values: [][]interface{}{{
			key,
			row.UserName,
			row.MilkDays,
			row.TotalQuantity,
			row.Price,
			row.TotalBill,
		}},
	}

	writeRange := fmt.Sprintf("%s!A%d:F%d", sheet, targetRow, targetRow)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, values).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write statement row %s: %w", key, err)
	}

	slog.InfoContext(ctx, "Statement exported to Google Sheets",
		"key", key,
		"sheet", sheet,
		"row", targetRow,
		"total_bill", row.TotalBill)

	return nil
}
