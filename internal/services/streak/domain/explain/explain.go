// Package explain replays a user's merged event stream step by step,
// capturing how each event moved the streak projection. It exists for
// debugging and support tooling; nothing here feeds back into the fold.
package explain

import (
	"fmt"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/domain/projection"
)

// EligibleContext describes the recovery window alongside a snapshot.
type EligibleContext struct {
	PostsRequired int       `json:"postsRequired"`
	CurrentPosts  int       `json:"currentPosts"`
	Deadline      time.Time `json:"deadline"`
}

// MissedContext describes a broken streak alongside a snapshot.
type MissedContext struct {
	MissedDate      calendar.DayKey   `json:"missedDate,omitempty"`
	MissedPostDates []calendar.DayKey `json:"missedPostDates,omitempty"`
}

// Snapshot is the observable streak state at one point in the replay.
type Snapshot struct {
	Status               projection.StatusType `json:"status"`
	CurrentStreak        int                   `json:"currentStreak"`
	OriginalStreak       int                   `json:"originalStreak"`
	LongestStreak        int                   `json:"longestStreak"`
	LastContributionDate calendar.DayKey       `json:"lastContributionDate,omitempty"`
	EligibleContext      *EligibleContext      `json:"eligibleContext,omitempty"`
	MissedContext        *MissedContext        `json:"missedContext,omitempty"`
}

// Change records one field transition caused by an event.
type Change struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
	Reason string `json:"reason"`
}

// EventRef identifies the replayed event without carrying its payload.
type EventRef struct {
	Seq       uint64          `json:"seq,omitempty"`
	Type      event.Type      `json:"type"`
	DayKey    calendar.DayKey `json:"dayKey"`
	CreatedAt time.Time       `json:"createdAt"`
	Virtual   bool            `json:"virtual,omitempty"`
}

// Step is one event application: the event, the state around it, and the
// field-level differences.
type Step struct {
	Event   EventRef `json:"event"`
	Before  Snapshot `json:"before"`
	After   Snapshot `json:"after"`
	Changes []Change `json:"changes,omitempty"`
}

// Period is the day range covered by a replay.
type Period struct {
	Start calendar.DayKey `json:"start,omitempty"`
	End   calendar.DayKey `json:"end,omitempty"`
}

// Summary aggregates replay statistics.
type Summary struct {
	TotalEvents       int    `json:"totalEvents"`
	VirtualClosures   int    `json:"virtualClosures"`
	StatusTransitions int    `json:"statusTransitions"`
	StreakChanges     int    `json:"streakChanges"`
	EvaluatedPeriod   Period `json:"evaluatedPeriod"`
}

// Explanation is the full replay report for one user.
type Explanation struct {
	UserID     string                `json:"userId"`
	Timezone   string                `json:"timezone"`
	Steps      []Step                `json:"steps"`
	Summary    Summary               `json:"summary"`
	Projection projection.Projection `json:"projection"`
}

// Explainer replays merged event streams through a reducer.
type Explainer struct {
	reducer *projection.Reducer
}

// New builds an explainer around the given reducer.
func New(reducer *projection.Reducer) *Explainer {
	return &Explainer{reducer: reducer}
}

// Replay folds the merged stream from the empty state, emitting one step per
// event. The stream must already contain synthesized day closures.
func (e *Explainer) Replay(userID, timezoneName string, merged []event.Event) Explanation {
	state := e.reducer.Initial(timezoneName)
	report := Explanation{
		UserID:   userID,
		Timezone: state.TimezoneName,
		Steps:    make([]Step, 0, len(merged)),
	}

	for _, evt := range merged {
		before := snapshot(state)
		next, err := e.reducer.Apply(state, evt)
		if err != nil {
			// Apply never fails; guard anyway so a replay cannot wedge.
			next = state
		}
		after := snapshot(next)

		step := Step{
			Event: EventRef{
				Seq:       evt.Seq,
				Type:      evt.Type,
				DayKey:    evt.DayKey,
				CreatedAt: evt.CreatedAt,
				Virtual:   evt.Virtual,
			},
			Before:  before,
			After:   after,
			Changes: diff(before, after, evt),
		}
		report.Steps = append(report.Steps, step)

		report.Summary.TotalEvents++
		if evt.Virtual {
			report.Summary.VirtualClosures++
		}
		if before.Status != after.Status {
			report.Summary.StatusTransitions++
		}
		if before.CurrentStreak != after.CurrentStreak {
			report.Summary.StreakChanges++
		}
		if report.Summary.EvaluatedPeriod.Start.IsZero() {
			report.Summary.EvaluatedPeriod.Start = evt.DayKey
		}
		report.Summary.EvaluatedPeriod.End = evt.DayKey

		state = next
	}

	report.Timezone = state.TimezoneName
	report.Projection = state.Projection
	return report
}

func snapshot(s projection.State) Snapshot {
	snap := Snapshot{
		Status:               s.Status.Type,
		CurrentStreak:        s.CurrentStreak,
		OriginalStreak:       s.OriginalStreak,
		LongestStreak:        s.LongestStreak,
		LastContributionDate: s.LastContributionDate,
	}
	switch s.Status.Type {
	case projection.StatusEligible:
		snap.EligibleContext = &EligibleContext{
			PostsRequired: s.Status.PostsRequired,
			CurrentPosts:  s.Status.CurrentPosts,
			Deadline:      s.Status.Deadline,
		}
		if len(s.MissedPostDates) > 0 {
			snap.MissedContext = &MissedContext{
				MissedPostDates: append([]calendar.DayKey(nil), s.MissedPostDates...),
			}
		}
	case projection.StatusMissed:
		snap.MissedContext = &MissedContext{MissedDate: s.Status.MissedDate}
	}
	return snap
}

func diff(before, after Snapshot, evt event.Event) []Change {
	var changes []Change
	add := func(field, b, a string) {
		if b == a {
			return
		}
		changes = append(changes, Change{
			Field:  field,
			Before: b,
			After:  a,
			Reason: reasonFor(before, after, evt),
		})
	}

	add("status", string(before.Status), string(after.Status))
	add("currentStreak", fmt.Sprint(before.CurrentStreak), fmt.Sprint(after.CurrentStreak))
	add("originalStreak", fmt.Sprint(before.OriginalStreak), fmt.Sprint(after.OriginalStreak))
	add("longestStreak", fmt.Sprint(before.LongestStreak), fmt.Sprint(after.LongestStreak))
	add("lastContributionDate", string(before.LastContributionDate), string(after.LastContributionDate))

	var beforePosts, afterPosts string
	if before.EligibleContext != nil {
		beforePosts = fmt.Sprint(before.EligibleContext.CurrentPosts)
	}
	if after.EligibleContext != nil {
		afterPosts = fmt.Sprint(after.EligibleContext.CurrentPosts)
	}
	add("recoveryPosts", beforePosts, afterPosts)

	return changes
}

// reasonFor phrases why an event moved a field, for humans reading the
// replay. Wording is best-effort; the before/after values are authoritative.
func reasonFor(before, after Snapshot, evt event.Event) string {
	switch evt.Type {
	case event.TypePostCreated:
		switch {
		case before.Status == projection.StatusMissed && after.Status == projection.StatusOnStreak:
			return fmt.Sprintf("post on %s started a new streak", evt.DayKey)
		case before.Status == projection.StatusEligible && after.Status == projection.StatusOnStreak:
			return fmt.Sprintf("recovery completed with the post on %s", evt.DayKey)
		case before.Status == projection.StatusEligible && after.Status == projection.StatusMissed:
			return fmt.Sprintf("post on %s arrived after the recovery deadline", evt.DayKey)
		case before.Status == projection.StatusEligible:
			return fmt.Sprintf("post on %s counted toward recovery", evt.DayKey)
		case after.CurrentStreak > before.CurrentStreak:
			return fmt.Sprintf("post on %s extended the streak", evt.DayKey)
		default:
			return fmt.Sprintf("post on %s recorded", evt.DayKey)
		}
	case event.TypePostDeleted:
		return fmt.Sprintf("a post attributed to %s was deleted", evt.DayKey)
	case event.TypeTimezoneChanged:
		return "the user's timezone changed"
	case event.TypeDayClosed:
		switch {
		case before.Status == projection.StatusOnStreak && after.Status == projection.StatusEligible:
			return fmt.Sprintf("working day %s closed without a contribution", evt.DayKey)
		case before.Status == projection.StatusEligible && after.Status == projection.StatusMissed:
			return fmt.Sprintf("the recovery deadline passed when %s closed", evt.DayKey)
		default:
			return fmt.Sprintf("day %s closed", evt.DayKey)
		}
	}
	return "state changed"
}
