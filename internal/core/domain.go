package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// Clock supplies the server wall-clock date. Handlers and services take a
	// Clock instead of calling time.Now so the edit window is testable.
	Clock func() time.Time

	Date struct {
		time.Time
	}

	// Month identifies one calendar month for one user, the scope key for
	// entries, monthly prices and statement exports.
	Month struct {
		Year  int
		Month int
	}

	User struct {
		ID              int64
		Name            string
		HasPIN          bool
		ReminderEnabled bool
		ReminderTime    string // "HH:MM", 24h
	}

	// Entry is one user's recorded milk quantity for one calendar date.
	Entry struct {
		UserID   int64
		Day      Date
		Quantity int
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrNegativePrice   = errors.New("negative price")
	ErrReadOnlyMonth   = errors.New("read-only month")
	ErrInvalidTime     = errors.New("invalid time of day")
)

// SystemClock is the production Clock.
func SystemClock() time.Time { return time.Now() }

const dateLayout = "2006-01-02"

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) ISO() string { return d.Format(dateLayout) }

func (d Date) In(m Month) bool {
	return d.Year() == m.Year && int(d.Time.Month()) == m.Month
}

func (m Month) Validate() error {
	if m.Month < 1 || m.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidDate, m.Month)
	}
	if m.Year < 1 {
		return fmt.Errorf("%w: year %d", ErrInvalidDate, m.Year)
	}
	return nil
}

// Bounds returns the half-open date range [first-of-month, first-of-next-month)
// as ISO strings, suitable for lexicographic range queries on stored days.
func (m Month) Bounds() (from, to string) {
	first := time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC)
	return first.Format(dateLayout), first.AddDate(0, 1, 0).Format(dateLayout)
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, m.Month) }

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: int(t.Month())}
}

// Editable reports whether m is the current calendar month according to clock.
// Only the current month accepts writes; past and future months are read-only.
func (m Month) Editable(clock Clock) bool {
	return m == MonthOf(clock())
}

// ValidateQuantity checks a day-entry quantity. Zero is allowed and means
// "remove the entry".
func ValidateQuantity(q int) error {
	if q < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, q)
	}
	return nil
}

// NormalizeReminderTime parses a 24h "HH:MM" string and returns it
// zero-padded. Stored times must be zero-padded so they order the same way
// the clock does.
func NormalizeReminderTime(s string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.Format("15:04"), nil
}

// ValidateReminderTime checks a 24h "HH:MM" string.
func ValidateReminderTime(s string) error {
	_, err := NormalizeReminderTime(s)
	return err
}
