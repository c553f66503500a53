package projection

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
)

func TestStatusJSONVariants(t *testing.T) {
	deadline := time.Date(2024, 1, 11, 15, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status Status
		want   []string
		absent []string
	}{
		{
			name:   "onStreak carries only the tag",
			status: OnStreak(),
			want:   []string{`"type":"onStreak"`},
			absent: []string{"postsRequired", "deadline", "missedDate"},
		},
		{
			name:   "eligible carries the recovery window",
			status: Eligible(2, 1, deadline),
			want:   []string{`"type":"eligible"`, `"postsRequired":2`, `"currentPosts":1`, `"deadline"`},
			absent: []string{"missedDate"},
		},
		{
			name:   "missed carries the broken day",
			status: Missed("2024-01-09"),
			want:   []string{`"type":"missed"`, `"missedDate":"2024-01-09"`},
			absent: []string{"postsRequired", "deadline"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.status)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			doc := string(raw)
			for _, want := range tc.want {
				if !strings.Contains(doc, want) {
					t.Fatalf("document %s missing %s", doc, want)
				}
			}
			for _, absent := range tc.absent {
				if strings.Contains(doc, absent) {
					t.Fatalf("document %s must not carry %s", doc, absent)
				}
			}

			var decoded Status
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if decoded.Type != tc.status.Type {
				t.Fatalf("type = %s, want %s", decoded.Type, tc.status.Type)
			}
			if tc.status.Type == StatusEligible && !decoded.Deadline.Equal(deadline) {
				t.Fatalf("deadline = %v, want %v", decoded.Deadline, deadline)
			}
			if decoded.MissedDate != tc.status.MissedDate {
				t.Fatalf("missedDate = %s, want %s", decoded.MissedDate, tc.status.MissedDate)
			}
		})
	}
}

func TestStatusUnmarshalRejectsUnknownType(t *testing.T) {
	var decoded Status
	err := json.Unmarshal([]byte(`{"type":"paused"}`), &decoded)
	if err == nil {
		t.Fatal("expected error for unknown status type")
	}
}

func TestProjectionJSONRoundTrip(t *testing.T) {
	p := Projection{
		Status:               Eligible(2, 1, time.Date(2024, 1, 11, 15, 0, 0, 0, time.UTC)),
		CurrentStreak:        4,
		OriginalStreak:       4,
		LongestStreak:        9,
		LastContributionDate: "2024-01-08",
		AppliedSeq:           17,
		ProjectorVersion:     ProjectorVersion,
		LastEvaluatedDayKey:  "2024-01-10",
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Projection
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Status.Type != StatusEligible {
		t.Fatalf("status = %s, want %s", decoded.Status.Type, StatusEligible)
	}
	if decoded.CurrentStreak != 4 || decoded.LongestStreak != 9 {
		t.Fatalf("streaks = %d/%d, want 4/9", decoded.CurrentStreak, decoded.LongestStreak)
	}
	if decoded.AppliedSeq != 17 {
		t.Fatalf("appliedSeq = %d, want 17", decoded.AppliedSeq)
	}
	if decoded.LastContributionDate != "2024-01-08" {
		t.Fatalf("lastContributionDate = %s, want 2024-01-08", decoded.LastContributionDate)
	}
	if decoded.LastEvaluatedDayKey != "2024-01-10" {
		t.Fatalf("lastEvaluatedDayKey = %s, want 2024-01-10", decoded.LastEvaluatedDayKey)
	}
}

func TestProjectionJSONNullContributionDate(t *testing.T) {
	raw, err := json.Marshal(Empty())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"lastContributionDate":null`) {
		t.Fatalf("empty projection must encode null lastContributionDate, got %s", raw)
	}

	var decoded Projection
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.LastContributionDate.IsZero() {
		t.Fatalf("lastContributionDate = %s, want zero", decoded.LastContributionDate)
	}
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.WithDefaults()
	if p.PostsRequired != 2 {
		t.Fatalf("postsRequired = %d, want 2", p.PostsRequired)
	}
	if p.GraceWorkingDays != 2 {
		t.Fatalf("graceWorkingDays = %d, want 2", p.GraceWorkingDays)
	}
	if p.DefaultTimezone != calendar.DefaultTimezone {
		t.Fatalf("defaultTimezone = %s, want %s", p.DefaultTimezone, calendar.DefaultTimezone)
	}

	custom := Policy{PostsRequired: 3, GraceWorkingDays: 1, DefaultTimezone: "UTC"}.WithDefaults()
	if custom.PostsRequired != 3 || custom.GraceWorkingDays != 1 || custom.DefaultTimezone != "UTC" {
		t.Fatalf("custom policy overridden: %+v", custom)
	}
}
