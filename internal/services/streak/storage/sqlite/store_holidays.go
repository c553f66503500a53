package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/storage"
)

// PutHolidayYear replaces the stored holidays for one calendar year.
func (s *Store) PutHolidayYear(ctx context.Context, year int, holidays []calendar.Holiday) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if year <= 0 {
		return fmt.Errorf("year must be greater than zero")
	}
	prefix := fmt.Sprintf("%04d-", year)
	for _, holiday := range holidays {
		if _, err := calendar.ParseDayKey(string(holiday.Date)); err != nil {
			return fmt.Errorf("holiday %q: %w", holiday.Date, err)
		}
		if !strings.HasPrefix(string(holiday.Date), prefix) {
			return fmt.Errorf("holiday %s is outside year %d", holiday.Date, year)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin holiday year: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holidays WHERE year = ?`, year); err != nil {
		return fmt.Errorf("clear holiday year: %w", err)
	}
	for _, holiday := range holidays {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO holidays (day_key, name, year) VALUES (?, ?, ?)
			 ON CONFLICT(day_key) DO UPDATE SET name = excluded.name, year = excluded.year`,
			string(holiday.Date),
			strings.TrimSpace(holiday.Name),
			year,
		)
		if err != nil {
			return fmt.Errorf("put holiday %s: %w", holiday.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit holiday year: %w", err)
	}
	return nil
}

// ListHolidays returns every stored holiday ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]calendar.Holiday, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT day_key, name FROM holidays ORDER BY day_key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	defer rows.Close()

	var holidays []calendar.Holiday
	for rows.Next() {
		var dayKey, name string
		if err := rows.Scan(&dayKey, &name); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		holidays = append(holidays, calendar.Holiday{Date: calendar.DayKey(dayKey), Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holidays: %w", err)
	}
	return holidays, nil
}

var _ storage.HolidayStore = (*Store)(nil)
