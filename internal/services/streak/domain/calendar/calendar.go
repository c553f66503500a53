// Package calendar owns day-key arithmetic, timezone resolution, and the
// working-day rules that drive streak deadline evaluation.
package calendar

import (
	"sort"
	"strings"
	"time"
	// Ship tzdata so IANA lookups work on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// DefaultTimezone is used when a user profile carries no usable timezone.
const DefaultTimezone = "Asia/Seoul"

// Holiday is a single non-working calendar day.
type Holiday struct {
	Date DayKey `json:"date"`
	Name string `json:"name"`
}

// Location resolves an IANA timezone identifier, falling back to
// DefaultTimezone for empty or unknown names.
func Location(name string) *time.Location {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		if loc, err := time.LoadLocation(trimmed); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Calendar answers working-day questions against a holiday set.
// Saturdays, Sundays, and listed holidays are non-working days.
type Calendar struct {
	holidays map[DayKey]string
}

// NewCalendar builds a calendar from holiday entries.
func NewCalendar(holidays []Holiday) *Calendar {
	byDate := make(map[DayKey]string, len(holidays))
	for _, h := range holidays {
		if h.Date.IsZero() {
			continue
		}
		byDate[h.Date] = h.Name
	}
	return &Calendar{holidays: byDate}
}

// WorkingDay reports whether the day counts toward streak evaluation.
func (c *Calendar) WorkingDay(day DayKey) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if c == nil {
		return true
	}
	_, holiday := c.holidays[day]
	return !holiday
}

// HolidayName returns the holiday name for a day, if listed.
func (c *Calendar) HolidayName(day DayKey) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.holidays[day]
	return name, ok
}

// Holidays returns the holiday entries sorted by date.
func (c *Calendar) Holidays() []Holiday {
	if c == nil || len(c.holidays) == 0 {
		return nil
	}
	entries := make([]Holiday, 0, len(c.holidays))
	for date, name := range c.holidays {
		entries = append(entries, Holiday{Date: date, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })
	return entries
}

// AddWorkingDays returns the n-th working day strictly after from.
func (c *Calendar) AddWorkingDays(from DayKey, n int) DayKey {
	day := from
	for n > 0 {
		day = day.AddDays(1)
		if c.WorkingDay(day) {
			n--
		}
	}
	return day
}

// DeadlineAfter computes the recovery deadline for a day missed on missed:
// local midnight at the end of the graceDays-th working day that follows.
func (c *Calendar) DeadlineAfter(missed DayKey, graceDays int, loc *time.Location) time.Time {
	last := c.AddWorkingDays(missed, graceDays)
	return last.EndIn(loc)
}
