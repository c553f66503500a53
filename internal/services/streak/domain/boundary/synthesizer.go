// Package boundary synthesizes virtual DayClosed events at local-midnight
// boundaries, merging them into the real event stream at read time. Virtual
// events are never persisted; they exist only inside a fold.
package boundary

import (
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
)

// Config controls a synthesis pass over one user's event window.
type Config struct {
	// UserID stamps synthesized events.
	UserID string
	// Timezone is the IANA zone in effect at the window start. When the
	// window contains a TimezoneChanged event, its recorded old timezone
	// takes precedence for the prefix before the change.
	Timezone string
	// ResumeAfterDay is the last day already evaluated by a cached
	// projection; synthesis starts at the following day. Zero starts from
	// the first event's day.
	ResumeAfterDay calendar.DayKey
	// LastContribution is the most recent contribution day recorded by a
	// cached projection. Its posts predate the window, so the day counts
	// as contributed even when the window holds no event for it.
	LastContribution calendar.DayKey
	// Cutoff is the evaluation instant, usually now.
	Cutoff time.Time
}

// Synthesizer lazily merges real events with virtual day closures. Ordering:
// all events of day D precede D's closure, and D's closure precedes any event
// of a later day. A real DayClosed in the journal suppresses the virtual
// closure for its day.
type Synthesizer struct {
	events           []event.Event
	idx              int
	userID           string
	tzName           string
	nextClose        calendar.DayKey
	lastContribution calendar.DayKey
	cutoff           time.Time
	done             bool
	earlyEval        bool
}

// StartTimezone resolves the IANA zone in effect at the start of an event
// window. The window's prefix predates any timezone change recorded inside
// it, so the first change's old zone wins over the profile's current zone.
func StartTimezone(events []event.Event, fallback string) string {
	for _, evt := range events {
		if evt.Type != event.TypeTimezoneChanged {
			continue
		}
		if decoded, err := event.DecodePayload(evt); err == nil && decoded.TimezoneChanged.OldTimezone != "" {
			return decoded.TimezoneChanged.OldTimezone
		}
		break
	}
	return fallback
}

// New builds a synthesizer over an ordered real-event window.
func New(events []event.Event, cfg Config) *Synthesizer {
	tzName := StartTimezone(events, cfg.Timezone)

	var nextClose calendar.DayKey
	if !cfg.ResumeAfterDay.IsZero() {
		nextClose = cfg.ResumeAfterDay.AddDays(1)
	} else if len(events) > 0 {
		nextClose = events[0].DayKey
	}

	userID := cfg.UserID
	if userID == "" && len(events) > 0 {
		userID = events[0].UserID
	}

	return &Synthesizer{
		events:           events,
		userID:           userID,
		tzName:           tzName,
		nextClose:        nextClose,
		lastContribution: cfg.LastContribution,
		cutoff:           cfg.Cutoff,
	}
}

// Next returns the next event in the merged stream.
func (s *Synthesizer) Next() (event.Event, bool) {
	if s.done {
		return event.Event{}, false
	}

	if s.idx < len(s.events) {
		evt := s.events[s.idx]
		if s.nextClose.IsZero() || !evt.DayKey.After(s.nextClose) {
			s.idx++
			s.observe(evt)
			return evt, true
		}
		return s.emitClosure(), true
	}

	// Real events are exhausted; close the gap up to the evaluation day.
	if s.nextClose.IsZero() {
		s.done = true
		return event.Event{}, false
	}
	evalDay := calendar.DayKeyOf(s.cutoff, calendar.Location(s.tzName))
	if s.nextClose.Before(evalDay) {
		return s.emitClosure(), true
	}
	if s.nextClose == evalDay && !s.contributedOn(evalDay) {
		// The evaluation day closes early when it holds no contribution,
		// surfacing deadline pressure without waiting for local midnight.
		s.earlyEval = true
		return s.emitClosure(), true
	}
	s.done = true
	return event.Event{}, false
}

// ClosedEvaluationDayEarly reports whether the stream ended with an early
// closure of the cutoff's own local day. That closure is provisional: the
// day is still open, and a later post can change its outcome. Callers that
// cache fold results must not persist state past it. When set, the early
// closure was the final event of the stream.
func (s *Synthesizer) ClosedEvaluationDayEarly() bool {
	return s.earlyEval
}

// Collect drains the synthesizer into a slice.
func (s *Synthesizer) Collect() []event.Event {
	var merged []event.Event
	for {
		evt, ok := s.Next()
		if !ok {
			return merged
		}
		merged = append(merged, evt)
	}
}

// observe tracks stream effects on synthesis state: timezone changes move
// the boundary clock, and a real DayClosed supplants its virtual twin.
func (s *Synthesizer) observe(evt event.Event) {
	switch evt.Type {
	case event.TypeTimezoneChanged:
		if decoded, err := event.DecodePayload(evt); err == nil && decoded.TimezoneChanged.NewTimezone != "" {
			s.tzName = decoded.TimezoneChanged.NewTimezone
		}
	case event.TypeDayClosed:
		if !evt.DayKey.Before(s.nextClose) {
			s.nextClose = evt.DayKey.AddDays(1)
		}
	}
	if s.nextClose.IsZero() {
		s.nextClose = evt.DayKey
	}
}

func (s *Synthesizer) emitClosure() event.Event {
	day := s.nextClose
	s.nextClose = day.AddDays(1)
	loc := calendar.Location(s.tzName)
	return event.Event{
		UserID:    s.userID,
		CreatedAt: day.EndIn(loc),
		DayKey:    day,
		Type:      event.TypeDayClosed,
		Virtual:   true,
	}
}

func (s *Synthesizer) contributedOn(day calendar.DayKey) bool {
	if !s.lastContribution.IsZero() && day == s.lastContribution {
		return true
	}
	for _, evt := range s.events {
		if evt.Type == event.TypePostCreated && evt.DayKey == day {
			return true
		}
	}
	return false
}
