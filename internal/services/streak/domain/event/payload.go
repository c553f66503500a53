package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
)

// PostCreatedPayload captures the payload for PostCreated events.
type PostCreatedPayload struct {
	PostID        string `json:"postId"`
	BoardID       string `json:"boardId,omitempty"`
	ContentLength int    `json:"contentLength,omitempty"`
}

// PostDeletedPayload captures the payload for PostDeleted events.
// DayKey is the local day the deleted post was originally created on, so a
// deletion can be reversed without replaying the creating event.
type PostDeletedPayload struct {
	PostID  string          `json:"postId"`
	BoardID string          `json:"boardId,omitempty"`
	DayKey  calendar.DayKey `json:"dayKey,omitempty"`
}

// TimezoneChangedPayload captures the payload for TimezoneChanged events.
type TimezoneChangedPayload struct {
	OldTimezone string `json:"oldTimezone"`
	NewTimezone string `json:"newTimezone"`
}

// DayClosedPayload captures the payload for DayClosed events.
type DayClosedPayload struct {
	DayKey calendar.DayKey `json:"dayKey,omitempty"`
}

// Decoded is the tagged union of event payloads, decoded once at ingestion.
// Exactly one variant pointer is set, matching Type.
type Decoded struct {
	Type            Type
	PostCreated     *PostCreatedPayload
	PostDeleted     *PostDeletedPayload
	TimezoneChanged *TimezoneChangedPayload
	DayClosed       *DayClosedPayload
}

var errUserIDRequired = errors.New("user id is required")

// UnknownTypeError reports an event type outside the journal schema.
// Folds skip such events with a diagnostic instead of failing.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", string(e.Type))
}

// PayloadError reports a payload that does not decode for its event type.
type PayloadError struct {
	Type  Type
	Cause error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Type, e.Cause)
}

func (e *PayloadError) Unwrap() error {
	return e.Cause
}

// DecodePayload decodes an event payload into its typed variant.
// Unknown types yield *UnknownTypeError; malformed payloads yield
// *PayloadError. Both are diagnostics, never fold-fatal.
func DecodePayload(evt Event) (Decoded, error) {
	raw := evt.Payload
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	decoded := Decoded{Type: evt.Type}
	switch evt.Type {
	case TypePostCreated:
		var payload PostCreatedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Decoded{}, &PayloadError{Type: evt.Type, Cause: err}
		}
		decoded.PostCreated = &payload
	case TypePostDeleted:
		var payload PostDeletedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Decoded{}, &PayloadError{Type: evt.Type, Cause: err}
		}
		decoded.PostDeleted = &payload
	case TypeTimezoneChanged:
		var payload TimezoneChangedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Decoded{}, &PayloadError{Type: evt.Type, Cause: err}
		}
		decoded.TimezoneChanged = &payload
	case TypeDayClosed:
		var payload DayClosedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Decoded{}, &PayloadError{Type: evt.Type, Cause: err}
		}
		if payload.DayKey.IsZero() {
			payload.DayKey = evt.DayKey
		}
		decoded.DayClosed = &payload
	default:
		return Decoded{}, &UnknownTypeError{Type: evt.Type}
	}
	return decoded, nil
}

// MustPayload marshals a payload struct, panicking on marshal failure.
// Intended for producers and tests building journal fixtures.
func MustPayload(payload any) json.RawMessage {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal event payload: %v", err))
	}
	return raw
}
