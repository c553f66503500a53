package projection

import (
	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
)

// bookkeepingHorizonDays bounds how long per-day post counts are retained.
// Deletions referencing older days fall back to their payload day key.
const bookkeepingHorizonDays = 60

// State is the full fold state carried across events. It embeds the cacheable
// Projection plus bookkeeping that exists only for the duration of a fold.
type State struct {
	Projection

	// TimezoneName is the IANA zone in effect at the current fold position,
	// updated by TimezoneChanged events.
	TimezoneName string
	// MissedPostDates lists working days without contributions since the
	// current recovery window opened.
	MissedPostDates []calendar.DayKey
	// PrevContributionDate allows one-step reversal when the most recent
	// contribution is deleted.
	PrevContributionDate calendar.DayKey

	postsByDay map[calendar.DayKey]int
	postDays   map[string]calendar.DayKey
}

// Clone returns a deep copy of the state, so replays can snapshot safely.
func (s State) Clone() State {
	copied := s
	copied.MissedPostDates = append([]calendar.DayKey(nil), s.MissedPostDates...)
	if s.postsByDay != nil {
		copied.postsByDay = make(map[calendar.DayKey]int, len(s.postsByDay))
		for day, count := range s.postsByDay {
			copied.postsByDay[day] = count
		}
	}
	if s.postDays != nil {
		copied.postDays = make(map[string]calendar.DayKey, len(s.postDays))
		for id, day := range s.postDays {
			copied.postDays[id] = day
		}
	}
	return copied
}

func (s *State) notePost(postID string, day calendar.DayKey) {
	if s.postsByDay == nil {
		s.postsByDay = make(map[calendar.DayKey]int)
	}
	s.postsByDay[day]++
	if postID != "" {
		if s.postDays == nil {
			s.postDays = make(map[string]calendar.DayKey)
		}
		s.postDays[postID] = day
	}
}

func (s *State) removePost(postID string, day calendar.DayKey) {
	if count, ok := s.postsByDay[day]; ok {
		if count <= 1 {
			delete(s.postsByDay, day)
		} else {
			s.postsByDay[day] = count - 1
		}
	}
	if postID != "" {
		delete(s.postDays, postID)
	}
}

func (s *State) postsOn(day calendar.DayKey) int {
	return s.postsByDay[day]
}

// postDay resolves the day a post was created on, preferring the payload's
// recorded day and falling back to fold bookkeeping.
func (s *State) postDay(postID string, payloadDay calendar.DayKey) calendar.DayKey {
	if !payloadDay.IsZero() {
		return payloadDay
	}
	if day, ok := s.postDays[postID]; ok {
		return day
	}
	return ""
}

// firstMissedDate returns the day that opened the current recovery window.
func (s *State) firstMissedDate(fallback calendar.DayKey) calendar.DayKey {
	if len(s.MissedPostDates) > 0 {
		return s.MissedPostDates[0]
	}
	return fallback
}

// trimBookkeeping drops per-day counts far behind the evaluation frontier.
func (s *State) trimBookkeeping(frontier calendar.DayKey) {
	if len(s.postsByDay) == 0 {
		return
	}
	horizon := frontier.AddDays(-bookkeepingHorizonDays)
	for day := range s.postsByDay {
		if day.Before(horizon) {
			delete(s.postsByDay, day)
		}
	}
	for id, day := range s.postDays {
		if day.Before(horizon) {
			delete(s.postDays, id)
		}
	}
}
