// Package projection folds ordered streak journal events into the cached
// per-user streak projection and owns the status state machine.
package projection

import (
	"encoding/json"

	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
)

// ProjectorVersion labels projections produced by this reducer generation.
// Bump it when fold semantics change so stale cache documents are detectable.
const ProjectorVersion = "phase2-v3"

// Policy carries the tunable streak rules. Zero values select the defaults
// observed in production behavior.
type Policy struct {
	// PostsRequired is the number of posts needed to recover a missed day.
	PostsRequired int
	// GraceWorkingDays is the length of the recovery window in working days.
	GraceWorkingDays int
	// DefaultTimezone is the IANA zone assumed for users without a profile
	// timezone.
	DefaultTimezone string
}

// WithDefaults fills unset policy fields.
func (p Policy) WithDefaults() Policy {
	if p.PostsRequired <= 0 {
		p.PostsRequired = 2
	}
	if p.GraceWorkingDays <= 0 {
		p.GraceWorkingDays = 2
	}
	if p.DefaultTimezone == "" {
		p.DefaultTimezone = calendar.DefaultTimezone
	}
	return p
}

// Projection is the cached summary derived from a user's streak journal.
// It mirrors the users/{uid}/streak_es/currentPhase2 document shape.
type Projection struct {
	Status               Status
	CurrentStreak        int
	OriginalStreak       int
	LongestStreak        int
	LastContributionDate calendar.DayKey
	AppliedSeq           uint64
	ProjectorVersion     string
	LastEvaluatedDayKey  calendar.DayKey
}

type projectionJSON struct {
	Status               Status  `json:"status"`
	CurrentStreak        int     `json:"currentStreak"`
	OriginalStreak       int     `json:"originalStreak"`
	LongestStreak        int     `json:"longestStreak"`
	LastContributionDate *string `json:"lastContributionDate"`
	AppliedSeq           uint64  `json:"appliedSeq"`
	ProjectorVersion     string  `json:"projectorVersion"`
	LastEvaluatedDayKey  string  `json:"lastEvaluatedDayKey,omitempty"`
}

// MarshalJSON encodes the projection document, writing an explicit null for
// a missing last contribution date.
func (p Projection) MarshalJSON() ([]byte, error) {
	out := projectionJSON{
		Status:              p.Status,
		CurrentStreak:       p.CurrentStreak,
		OriginalStreak:      p.OriginalStreak,
		LongestStreak:       p.LongestStreak,
		AppliedSeq:          p.AppliedSeq,
		ProjectorVersion:    p.ProjectorVersion,
		LastEvaluatedDayKey: string(p.LastEvaluatedDayKey),
	}
	if !p.LastContributionDate.IsZero() {
		value := string(p.LastContributionDate)
		out.LastContributionDate = &value
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a projection document.
func (p *Projection) UnmarshalJSON(data []byte) error {
	var in projectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Status = in.Status
	p.CurrentStreak = in.CurrentStreak
	p.OriginalStreak = in.OriginalStreak
	p.LongestStreak = in.LongestStreak
	p.AppliedSeq = in.AppliedSeq
	p.ProjectorVersion = in.ProjectorVersion
	p.LastEvaluatedDayKey = calendar.DayKey(in.LastEvaluatedDayKey)
	p.LastContributionDate = ""
	if in.LastContributionDate != nil {
		p.LastContributionDate = calendar.DayKey(*in.LastContributionDate)
	}
	return nil
}

// Empty returns the projection of a user with no folded events.
func Empty() Projection {
	return Projection{
		Status:           OnStreak(),
		ProjectorVersion: ProjectorVersion,
	}
}
