// Package storage defines persistence contracts for streak service state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/domain/projection"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrStaleProjection indicates a projection write lost the applied-seq
	// race to a fresher write and was discarded.
	ErrStaleProjection = errors.New("projection write is stale")
)

// ProjectionRecord stores one cached projection document per user.
type ProjectionRecord struct {
	UserID     string
	Projection projection.Projection
	UpdatedAt  time.Time
}

// UserProfile stores the per-user settings the projector reads.
type UserProfile struct {
	UserID      string
	DisplayName string
	Email       string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventStore persists the per-user append-only event journal.
type EventStore interface {
	// AppendEvent assigns the next per-user sequence and stores the event.
	// When the idempotency key was seen before, the previously stored event
	// is returned and nothing is written.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// ListEvents returns up to limit events with Seq > afterSeq in
	// ascending sequence order.
	ListEvents(ctx context.Context, userID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListEventsByDay returns events whose day key falls in [from, to],
	// ordered by sequence, descending when desc is set. A zero from or to
	// leaves that bound open.
	ListEventsByDay(ctx context.Context, userID string, from, to calendar.DayKey, desc bool, limit int) ([]event.Event, error)
	// LastSeq returns the highest sequence in the user's journal, zero when
	// the journal is empty.
	LastSeq(ctx context.Context, userID string) (uint64, error)
}

// ProjectionStore caches fold results keyed by user.
type ProjectionStore interface {
	GetProjection(ctx context.Context, userID string) (ProjectionRecord, error)
	// SaveProjection upserts the record unless the stored projection has a
	// higher applied sequence, in which case ErrStaleProjection is returned.
	SaveProjection(ctx context.Context, record ProjectionRecord) error
}

// UserStore persists user profiles.
type UserStore interface {
	PutUserProfile(ctx context.Context, profile UserProfile) error
	GetUserProfile(ctx context.Context, userID string) (UserProfile, error)
	ListUserProfiles(ctx context.Context) ([]UserProfile, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// HolidayStore persists the working-day calendar's holiday exclusions.
type HolidayStore interface {
	// PutHolidayYear replaces the stored holidays for one calendar year.
	PutHolidayYear(ctx context.Context, year int, holidays []calendar.Holiday) error
	ListHolidays(ctx context.Context) ([]calendar.Holiday, error)
}

// Store aggregates the persistence contracts the streak service needs.
type Store interface {
	EventStore
	ProjectionStore
	UserStore
	HolidayStore
}
