package domain

import (
	"fmt"
	"strings"
	"time"
)

const dueDateLayout = "2006-01-02"

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParseDueDate normalizes a backend due date. Plain dates are taken as is,
// timestamps are converted to loc before the date is taken.
func ParseDueDate(raw string, loc *time.Location) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, fmt.Errorf("empty due date")
	}
	if t, err := time.Parse(dueDateLayout, s); err == nil {
		return DateOf(t, nil), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == time.RFC3339Nano {
			return DateOf(t, loc), nil
		}
		return DateOf(t, nil), nil
	}
	return Date{}, fmt.Errorf("unparseable due date %q", raw)
}
