package calendar

import (
	"fmt"
	"strings"
	"time"
)

// dayKeyLayout is the wire format for calendar days.
const dayKeyLayout = "2006-01-02"

// DayKey identifies a local calendar day in YYYY-MM-DD form.
type DayKey string

// ParseDayKey validates a YYYY-MM-DD day key.
func ParseDayKey(value string) (DayKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("day key is required")
	}
	if _, err := time.Parse(dayKeyLayout, trimmed); err != nil {
		return "", fmt.Errorf("parse day key %q: %w", trimmed, err)
	}
	return DayKey(trimmed), nil
}

// DayKeyOf returns the local calendar day of an instant in the given location.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.UTC
	}
	return DayKey(t.In(loc).Format(dayKeyLayout))
}

// IsZero reports whether the day key is unset.
func (d DayKey) IsZero() bool {
	return strings.TrimSpace(string(d)) == ""
}

// String returns the YYYY-MM-DD representation.
func (d DayKey) String() string {
	return string(d)
}

// time parses the day key as a civil date; zero day keys yield the zero time.
func (d DayKey) time() time.Time {
	t, err := time.Parse(dayKeyLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// StartIn returns local midnight at the start of the day in loc.
func (d DayKey) StartIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := d.time()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndIn returns local midnight at the end of the day in loc, which is the
// first instant of the following day.
func (d DayKey) EndIn(loc *time.Location) time.Time {
	return d.AddDays(1).StartIn(loc)
}

// AddDays returns the day key n calendar days away (n may be negative).
func (d DayKey) AddDays(n int) DayKey {
	return DayKey(d.time().AddDate(0, 0, n).Format(dayKeyLayout))
}

// Weekday returns the day of the week.
func (d DayKey) Weekday() time.Weekday {
	return d.time().Weekday()
}

// Before reports whether d is an earlier calendar day than other.
// Day keys sort lexically, which matches chronological order.
func (d DayKey) Before(other DayKey) bool {
	return string(d) < string(other)
}

// After reports whether d is a later calendar day than other.
func (d DayKey) After(other DayKey) bool {
	return string(d) > string(other)
}
