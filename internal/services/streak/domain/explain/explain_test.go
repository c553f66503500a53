package explain

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/boundary"
	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/domain/projection"
)

const testTZ = "Asia/Seoul"

func post(seq uint64, day calendar.DayKey, hour int) event.Event {
	loc := calendar.Location(testTZ)
	return event.Event{
		ID:        fmt.Sprintf("evt-%d", seq),
		UserID:    "u1",
		Seq:       seq,
		CreatedAt: day.StartIn(loc).Add(time.Duration(hour) * time.Hour),
		DayKey:    day,
		Type:      event.TypePostCreated,
		Payload:   json.RawMessage(fmt.Sprintf(`{"postId":"p-%d"}`, seq)),
	}
}

func replayWindow(t *testing.T, events []event.Event, cutoff time.Time) Explanation {
	t.Helper()
	merged := boundary.New(events, boundary.Config{
		UserID:   "u1",
		Timezone: testTZ,
		Cutoff:   cutoff,
	}).Collect()
	reducer := projection.NewReducer(projection.Policy{}.WithDefaults(), calendar.NewCalendar(nil))
	reducer.SetLogf(func(string, ...any) {})
	return New(reducer).Replay("u1", testTZ, merged)
}

func TestReplayTracksStatusTransition(t *testing.T) {
	loc := calendar.Location(testTZ)
	events := []event.Event{post(1, "2024-01-08", 9)} // Monday
	cutoff := calendar.DayKey("2024-01-09").StartIn(loc).Add(15 * time.Hour)

	report := replayWindow(t, events, cutoff)

	// post, closure of Mon, closure of Tue (no contribution).
	if len(report.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(report.Steps))
	}

	first := report.Steps[0]
	if first.Event.Type != event.TypePostCreated {
		t.Fatalf("step 0 type = %s, want PostCreated", first.Event.Type)
	}
	if first.After.CurrentStreak != 1 {
		t.Fatalf("step 0 after streak = %d, want 1", first.After.CurrentStreak)
	}

	last := report.Steps[2]
	if !last.Event.Virtual {
		t.Fatal("step 2 should be a virtual closure")
	}
	if last.Before.Status != projection.StatusOnStreak || last.After.Status != projection.StatusEligible {
		t.Fatalf("step 2 transition %s -> %s, want onStreak -> eligible", last.Before.Status, last.After.Status)
	}
	if last.After.EligibleContext == nil {
		t.Fatal("eligible snapshot must carry its context")
	}
	if last.After.EligibleContext.PostsRequired != 2 {
		t.Fatalf("postsRequired = %d, want 2", last.After.EligibleContext.PostsRequired)
	}

	var statusChange *Change
	for i := range last.Changes {
		if last.Changes[i].Field == "status" {
			statusChange = &last.Changes[i]
		}
	}
	if statusChange == nil {
		t.Fatalf("no status change recorded: %+v", last.Changes)
	}
	if statusChange.Before != "onStreak" || statusChange.After != "eligible" {
		t.Fatalf("status change %s -> %s, want onStreak -> eligible", statusChange.Before, statusChange.After)
	}
	if statusChange.Reason == "" {
		t.Fatal("status change must carry a reason")
	}
}

func TestReplaySummaryCounts(t *testing.T) {
	loc := calendar.Location(testTZ)
	events := []event.Event{
		post(1, "2024-01-08", 9),
		post(2, "2024-01-09", 9),
	}
	cutoff := calendar.DayKey("2024-01-09").StartIn(loc).Add(15 * time.Hour)

	report := replayWindow(t, events, cutoff)

	// post, closure Mon, post: Tue stays open because it holds a post.
	if report.Summary.TotalEvents != 3 {
		t.Fatalf("totalEvents = %d, want 3", report.Summary.TotalEvents)
	}
	if report.Summary.VirtualClosures != 1 {
		t.Fatalf("virtualClosures = %d, want 1", report.Summary.VirtualClosures)
	}
	if report.Summary.StatusTransitions != 0 {
		t.Fatalf("statusTransitions = %d, want 0", report.Summary.StatusTransitions)
	}
	if report.Summary.StreakChanges != 2 {
		t.Fatalf("streakChanges = %d, want 2", report.Summary.StreakChanges)
	}
	if report.Summary.EvaluatedPeriod.Start != "2024-01-08" || report.Summary.EvaluatedPeriod.End != "2024-01-09" {
		t.Fatalf("period = %+v, want 2024-01-08..2024-01-09", report.Summary.EvaluatedPeriod)
	}
}

func TestReplayFinalProjectionMatchesDirectFold(t *testing.T) {
	loc := calendar.Location(testTZ)
	events := []event.Event{
		post(1, "2024-01-08", 9),
		post(2, "2024-01-11", 9),
	}
	cutoff := calendar.DayKey("2024-01-11").StartIn(loc).Add(15 * time.Hour)

	merged := boundary.New(events, boundary.Config{UserID: "u1", Timezone: testTZ, Cutoff: cutoff}).Collect()
	reducer := projection.NewReducer(projection.Policy{}.WithDefaults(), calendar.NewCalendar(nil))
	reducer.SetLogf(func(string, ...any) {})

	state := reducer.Initial(testTZ)
	for _, evt := range merged {
		next, err := reducer.Apply(state, evt)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		state = next
	}

	report := New(reducer).Replay("u1", testTZ, merged)
	if report.Projection.Status.Type != state.Status.Type {
		t.Fatalf("status %s vs %s", report.Projection.Status.Type, state.Status.Type)
	}
	if report.Projection.CurrentStreak != state.CurrentStreak {
		t.Fatalf("currentStreak %d vs %d", report.Projection.CurrentStreak, state.CurrentStreak)
	}
	if report.Projection.AppliedSeq != state.AppliedSeq {
		t.Fatalf("appliedSeq %d vs %d", report.Projection.AppliedSeq, state.AppliedSeq)
	}
}

func TestReplayEmptyStream(t *testing.T) {
	report := New(projection.NewReducer(projection.Policy{}.WithDefaults(), calendar.NewCalendar(nil))).
		Replay("u1", testTZ, nil)

	if len(report.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(report.Steps))
	}
	if report.Summary.TotalEvents != 0 {
		t.Fatalf("totalEvents = %d, want 0", report.Summary.TotalEvents)
	}
	if report.Projection.ProjectorVersion != projection.ProjectorVersion {
		t.Fatalf("projectorVersion = %s, want %s", report.Projection.ProjectorVersion, projection.ProjectorVersion)
	}
	if report.Timezone != testTZ {
		t.Fatalf("timezone = %s, want %s", report.Timezone, testTZ)
	}
}
