package projection

import (
	"log"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
)

// Reducer folds ordered journal events into streak state. The fold is pure
// and resumable: applying events after a cached state yields the same result
// as a full fold from the empty state over the whole journal.
type Reducer struct {
	policy   Policy
	calendar *calendar.Calendar
	logf     func(format string, args ...any)
}

// NewReducer builds a reducer for the given policy and working-day calendar.
func NewReducer(policy Policy, cal *calendar.Calendar) *Reducer {
	if cal == nil {
		cal = calendar.NewCalendar(nil)
	}
	return &Reducer{
		policy:   policy.WithDefaults(),
		calendar: cal,
		logf:     log.Printf,
	}
}

// SetLogf overrides the diagnostic logger. A nil logf silences diagnostics.
func (r *Reducer) SetLogf(logf func(format string, args ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	r.logf = logf
}

// Policy returns the effective fold policy.
func (r *Reducer) Policy() Policy {
	return r.policy
}

// Initial returns the empty fold state for a user in the given timezone.
func (r *Reducer) Initial(timezoneName string) State {
	if timezoneName == "" {
		timezoneName = r.policy.DefaultTimezone
	}
	return State{
		Projection:   Empty(),
		TimezoneName: timezoneName,
	}
}

// Resume reconstructs fold state from a cached projection so the fold can
// continue with only the events after the projection's applied sequence.
func (r *Reducer) Resume(cached Projection, timezoneName string) State {
	state := r.Initial(timezoneName)
	state.Projection = cached
	state.Projection.ProjectorVersion = ProjectorVersion
	if !cached.LastContributionDate.IsZero() {
		// The cached document proves at least one surviving post that day.
		state.notePost("", cached.LastContributionDate)
	}
	return state
}

// Apply folds a single event into the state. Malformed or unknown events are
// skipped with a diagnostic; they still advance the applied sequence so a
// resumed fold does not reprocess them. Apply never fails the fold.
func (r *Reducer) Apply(state State, evt event.Event) (State, error) {
	decoded, err := event.DecodePayload(evt)
	if err != nil {
		r.logf("streak fold: skip event user=%s seq=%d: %v", evt.UserID, evt.Seq, err)
		state.advance(evt)
		return state, nil
	}

	switch decoded.Type {
	case event.TypePostCreated:
		state = r.applyPostCreated(state, evt, decoded.PostCreated)
	case event.TypePostDeleted:
		state = r.applyPostDeleted(state, evt, decoded.PostDeleted)
	case event.TypeTimezoneChanged:
		state = r.applyTimezoneChanged(state, decoded.TimezoneChanged)
	case event.TypeDayClosed:
		state = r.applyDayClosed(state, decoded.DayClosed)
	}

	state.advance(evt)
	return state, nil
}

// advance moves the applied sequence past a processed real event. Virtual
// events never advance it, so resuming from cache cannot skip real events.
func (s *State) advance(evt event.Event) {
	if !evt.Virtual && evt.Seq > s.AppliedSeq {
		s.AppliedSeq = evt.Seq
	}
}

func (r *Reducer) applyPostCreated(s State, evt event.Event, payload *event.PostCreatedPayload) State {
	day := evt.DayKey
	s.notePost(payload.PostID, day)

	switch s.Status.Type {
	case StatusMissed:
		// A new contribution restarts the streak from one.
		s = r.restartStreak(s, day)

	case StatusEligible:
		if !evt.CreatedAt.Before(s.Status.Deadline) {
			// The grace window expired before this post; the streak is
			// already broken, and this post starts a new one.
			s.Status = Missed(day)
			s.CurrentStreak = 0
			s = r.restartStreak(s, day)
			break
		}
		s.Status.CurrentPosts++
		if s.Status.CurrentPosts >= s.Status.PostsRequired {
			// Recovery success: the streak continues from its pre-break
			// value plus the recovered day.
			s.Status = OnStreak()
			s.CurrentStreak = s.OriginalStreak + 1
			s.OriginalStreak = s.CurrentStreak
			s.PrevContributionDate = s.LastContributionDate
			s.LastContributionDate = day
			s.MissedPostDates = nil
			if s.CurrentStreak > s.LongestStreak {
				s.LongestStreak = s.CurrentStreak
			}
		}

	case StatusOnStreak:
		if s.LastContributionDate.IsZero() {
			s.CurrentStreak = 1
			s.OriginalStreak = 1
			s.LastContributionDate = day
		} else if day.After(s.LastContributionDate) && r.calendar.WorkingDay(day) {
			s.CurrentStreak++
			s.OriginalStreak = s.CurrentStreak
			s.PrevContributionDate = s.LastContributionDate
			s.LastContributionDate = day
		}
		// Additional posts on an already-counted day, and posts on
		// non-working days, contribute to day coverage but not the count.
		if s.CurrentStreak > s.LongestStreak {
			s.LongestStreak = s.CurrentStreak
		}
	}
	return s
}

func (r *Reducer) restartStreak(s State, day calendar.DayKey) State {
	s.Status = OnStreak()
	s.CurrentStreak = 1
	s.OriginalStreak = 1
	s.PrevContributionDate = ""
	s.LastContributionDate = day
	s.MissedPostDates = nil
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	return s
}

func (r *Reducer) applyPostDeleted(s State, evt event.Event, payload *event.PostDeletedPayload) State {
	day := s.postDay(payload.PostID, payload.DayKey)
	if day.IsZero() {
		r.logf("streak fold: PostDeleted user=%s seq=%d post=%s has no attributable day, skipping",
			evt.UserID, evt.Seq, payload.PostID)
		return s
	}
	s.removePost(payload.PostID, day)

	switch s.Status.Type {
	case StatusMissed:
		// A broken streak is never resurrected nor worsened by deletions.

	case StatusEligible:
		if s.Status.CurrentPosts > 0 && !day.Before(s.firstMissedDate(day)) {
			s.Status.CurrentPosts--
		}

	case StatusOnStreak:
		if day == s.LastContributionDate && s.postsOn(day) == 0 {
			// The most recent qualifying contribution is gone.
			if s.CurrentStreak > 0 {
				s.CurrentStreak--
				s.OriginalStreak = s.CurrentStreak
			}
			s.LastContributionDate = s.PrevContributionDate
			s.PrevContributionDate = ""
		}
	}
	return s
}

func (r *Reducer) applyTimezoneChanged(s State, payload *event.TimezoneChangedPayload) State {
	if payload.NewTimezone != "" {
		s.TimezoneName = payload.NewTimezone
	}
	return s
}

func (r *Reducer) applyDayClosed(s State, payload *event.DayClosedPayload) State {
	day := payload.DayKey
	if !s.LastEvaluatedDayKey.IsZero() && !day.After(s.LastEvaluatedDayKey) {
		// Duplicate or out-of-order closure; the day was already evaluated.
		return s
	}
	s.LastEvaluatedDayKey = day
	s.trimBookkeeping(day)

	if !r.calendar.WorkingDay(day) {
		// Weekends and holidays never trigger deadline checks.
		return s
	}

	loc := calendar.Location(s.TimezoneName)
	contributed := s.postsOn(day) > 0 || s.LastContributionDate == day

	switch s.Status.Type {
	case StatusOnStreak:
		if !contributed {
			// First missed working day opens the recovery window.
			s.OriginalStreak = s.CurrentStreak
			deadline := r.calendar.DeadlineAfter(day, r.policy.GraceWorkingDays, loc)
			s.Status = Eligible(r.policy.PostsRequired, 0, deadline)
			s.MissedPostDates = []calendar.DayKey{day}
		}

	case StatusEligible:
		closeInstant := day.EndIn(loc)
		if !closeInstant.Before(s.Status.Deadline) && s.Status.CurrentPosts < s.Status.PostsRequired {
			// The closing day is the one the streak breaks on.
			s.Status = Missed(day)
			s.CurrentStreak = 0
		} else if !contributed {
			s.MissedPostDates = append(s.MissedPostDates, day)
		}

	case StatusMissed:
		// Terminal until a new contribution restarts the streak.
	}
	return s
}
