// Package event defines the append-only streak event journal consumed by the
// projector. Events are totally ordered per user by Seq; DayClosed events may
// be real (persisted) or virtual (synthesized at read time).
package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
)

// Type identifies the kind of a streak event.
type Type string

const (
	// TypePostCreated records a post published to a board.
	TypePostCreated Type = "PostCreated"
	// TypePostDeleted records the removal of a previously published post.
	TypePostDeleted Type = "PostDeleted"
	// TypeTimezoneChanged records a change of the user's IANA timezone.
	TypeTimezoneChanged Type = "TimezoneChanged"
	// TypeDayClosed records a local-midnight day boundary.
	TypeDayClosed Type = "DayClosed"
)

// IsValid reports whether the event type is one of the journal types.
func (t Type) IsValid() bool {
	switch t {
	case TypePostCreated, TypePostDeleted, TypeTimezoneChanged, TypeDayClosed:
		return true
	}
	return false
}

// Event is an immutable entry in a user's streak journal.
type Event struct {
	// ID is the journal document identifier. Empty for virtual events.
	ID string
	// UserID is the journal owner.
	UserID string
	// Seq is the event sequence number within the user journal (starts at 1).
	// Assigned by storage on append. Virtual events carry Seq 0 and must
	// never advance a projection's applied sequence.
	Seq uint64
	// CreatedAt is when the event occurred.
	CreatedAt time.Time
	// DayKey is the local calendar day of occurrence, derived from CreatedAt
	// in the timezone active at event time.
	DayKey calendar.DayKey
	// Type identifies the kind of event.
	Type Type
	// Payload holds event-specific data as JSON.
	Payload json.RawMessage
	// IdempotencyKey deduplicates producer retries. Optional.
	IdempotencyKey string
	// Virtual marks a synthesized DayClosed that was never persisted.
	Virtual bool
}

// Validate checks the fields every stored event must carry.
func (e Event) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return errUserIDRequired
	}
	if !e.Type.IsValid() {
		return &UnknownTypeError{Type: e.Type}
	}
	if _, err := calendar.ParseDayKey(string(e.DayKey)); err != nil {
		return err
	}
	return nil
}
