package projection

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
)

// StatusType discriminates the streak status union.
type StatusType string

const (
	// StatusOnStreak means the most recent required day was covered.
	StatusOnStreak StatusType = "onStreak"
	// StatusEligible means the user is inside a recovery grace window.
	StatusEligible StatusType = "eligible"
	// StatusMissed means the streak broke; terminal until a new contribution.
	StatusMissed StatusType = "missed"
)

// Status is the tagged streak status union. Exactly the fields belonging to
// the active variant are meaningful; JSON encoding carries only those.
type Status struct {
	Type StatusType
	// Eligible variant.
	PostsRequired int
	CurrentPosts  int
	Deadline      time.Time
	// Missed variant.
	MissedDate calendar.DayKey
}

// OnStreak returns the onStreak status.
func OnStreak() Status {
	return Status{Type: StatusOnStreak}
}

// Eligible returns an eligible status with recovery window parameters.
func Eligible(postsRequired, currentPosts int, deadline time.Time) Status {
	return Status{
		Type:          StatusEligible,
		PostsRequired: postsRequired,
		CurrentPosts:  currentPosts,
		Deadline:      deadline,
	}
}

// Missed returns a missed status broken on the given day.
func Missed(missedDate calendar.DayKey) Status {
	return Status{Type: StatusMissed, MissedDate: missedDate}
}

type statusJSON struct {
	Type          StatusType `json:"type"`
	PostsRequired *int       `json:"postsRequired,omitempty"`
	CurrentPosts  *int       `json:"currentPosts,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	MissedDate    string     `json:"missedDate,omitempty"`
}

// MarshalJSON encodes only the active variant's fields.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{Type: s.Type}
	switch s.Type {
	case StatusEligible:
		required := s.PostsRequired
		current := s.CurrentPosts
		deadline := s.Deadline.UTC()
		out.PostsRequired = &required
		out.CurrentPosts = &current
		out.Deadline = &deadline
	case StatusMissed:
		out.MissedDate = string(s.MissedDate)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a status union document.
func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case StatusOnStreak:
		*s = OnStreak()
	case StatusEligible:
		required := 0
		if in.PostsRequired != nil {
			required = *in.PostsRequired
		}
		current := 0
		if in.CurrentPosts != nil {
			current = *in.CurrentPosts
		}
		var deadline time.Time
		if in.Deadline != nil {
			deadline = in.Deadline.UTC()
		}
		*s = Eligible(required, current, deadline)
	case StatusMissed:
		*s = Missed(calendar.DayKey(in.MissedDate))
	default:
		return fmt.Errorf("unknown status type %q", in.Type)
	}
	return nil
}
