package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/storage"
)

const eventColumns = `user_id, seq, event_id, created_at, day_key, event_type, payload, idempotency_key`

// AppendEvent assigns the next per-user sequence and stores the event. A
// repeated idempotency key returns the originally stored event unchanged.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if err := s.ready(); err != nil {
		return event.Event{}, err
	}
	if evt.Virtual {
		return event.Event{}, fmt.Errorf("virtual events are never persisted")
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := strings.TrimSpace(evt.IdempotencyKey)
	if key != "" {
		existing, err := scanEventRow(tx.QueryRowContext(
			ctx,
			`SELECT `+eventColumns+` FROM events WHERE user_id = ? AND idempotency_key = ?`,
			evt.UserID, key,
		))
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	var seq uint64
	err = tx.QueryRowContext(
		ctx,
		`INSERT INTO event_seqs (user_id, last_seq) VALUES (?, 1)
		 ON CONFLICT(user_id) DO UPDATE SET last_seq = last_seq + 1
		 RETURNING last_seq`,
		evt.UserID,
	).Scan(&seq)
	if err != nil {
		return event.Event{}, fmt.Errorf("allocate sequence: %w", err)
	}

	payload := evt.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.UserID,
		seq,
		evt.ID,
		toMillis(evt.CreatedAt),
		string(evt.DayKey),
		string(evt.Type),
		string(payload),
		key,
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit append: %w", err)
	}

	evt.Seq = seq
	evt.Payload = payload
	evt.IdempotencyKey = key
	return evt, nil
}

// ListEvents returns up to limit events with Seq > afterSeq in ascending order.
func (s *Store) ListEvents(ctx context.Context, userID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+eventColumns+`
		   FROM events
		  WHERE user_id = ? AND seq > ?
		  ORDER BY seq ASC
		  LIMIT ?`,
		userID, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListEventsByDay returns events whose day key falls in [from, to],
// descending by sequence when desc is set.
func (s *Store) ListEventsByDay(ctx context.Context, userID string, from, to calendar.DayKey, desc bool, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND day_key >= ?`
		args = append(args, string(from))
	}
	if !to.IsZero() {
		query += ` AND day_key <= ?`
		args = append(args, string(to))
	}
	order := ` ORDER BY seq ASC LIMIT ?`
	if desc {
		order = ` ORDER BY seq DESC LIMIT ?`
	}
	query += order
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events by day: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// LastSeq returns the highest sequence in the user's journal.
func (s *Store) LastSeq(ctx context.Context, userID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	var seq uint64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT last_seq FROM event_seqs WHERE user_id = ?`,
		userID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventRow(row rowScanner) (event.Event, error) {
	var evt event.Event
	var createdAt int64
	var dayKey, eventType, payload string
	err := row.Scan(
		&evt.UserID,
		&evt.Seq,
		&evt.ID,
		&createdAt,
		&dayKey,
		&eventType,
		&payload,
		&evt.IdempotencyKey,
	)
	if err != nil {
		return event.Event{}, err
	}
	evt.CreatedAt = fromMillis(createdAt)
	evt.DayKey = calendar.DayKey(dayKey)
	evt.Type = event.Type(eventType)
	evt.Payload = json.RawMessage(payload)
	return evt, nil
}

func collectEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		evt, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

var _ storage.EventStore = (*Store)(nil)
