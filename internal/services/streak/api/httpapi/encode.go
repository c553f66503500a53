package httpapi

import (
	"encoding/json"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/app"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/domain/projection"
)

// timestampDTO serializes an instant as epoch seconds plus nanoseconds,
// matching what projection consumers already parse.
type timestampDTO struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int   `json:"nanoseconds"`
}

func timestamp(t time.Time) timestampDTO {
	return timestampDTO{Seconds: t.Unix(), Nanoseconds: t.Nanosecond()}
}

type statusDTO struct {
	Type          string        `json:"type"`
	PostsRequired *int          `json:"postsRequired,omitempty"`
	CurrentPosts  *int          `json:"currentPosts,omitempty"`
	Deadline      *timestampDTO `json:"deadline,omitempty"`
	MissedDate    string        `json:"missedDate,omitempty"`
}

type projectionDTO struct {
	Status               statusDTO `json:"status"`
	CurrentStreak        int       `json:"currentStreak"`
	OriginalStreak       int       `json:"originalStreak"`
	LongestStreak        int       `json:"longestStreak"`
	LastContributionDate *string   `json:"lastContributionDate"`
	AppliedSeq           uint64    `json:"appliedSeq"`
	ProjectorVersion     string    `json:"projectorVersion"`
	LastEvaluatedDayKey  string    `json:"lastEvaluatedDayKey,omitempty"`
}

func projectionResponse(p projection.Projection) projectionDTO {
	dto := projectionDTO{
		Status:              statusDTO{Type: string(p.Status.Type)},
		CurrentStreak:       p.CurrentStreak,
		OriginalStreak:      p.OriginalStreak,
		LongestStreak:       p.LongestStreak,
		AppliedSeq:          p.AppliedSeq,
		ProjectorVersion:    p.ProjectorVersion,
		LastEvaluatedDayKey: string(p.LastEvaluatedDayKey),
	}
	switch p.Status.Type {
	case projection.StatusEligible:
		required := p.Status.PostsRequired
		current := p.Status.CurrentPosts
		deadline := timestamp(p.Status.Deadline)
		dto.Status.PostsRequired = &required
		dto.Status.CurrentPosts = &current
		dto.Status.Deadline = &deadline
	case projection.StatusMissed:
		dto.Status.MissedDate = string(p.Status.MissedDate)
	}
	if !p.LastContributionDate.IsZero() {
		date := string(p.LastContributionDate)
		dto.LastContributionDate = &date
	}
	return dto
}

type eventDTO struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Type      string          `json:"type"`
	DayKey    string          `json:"dayKey"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

type eventsDTO struct {
	UID    string     `json:"uid"`
	Events []eventDTO `json:"events"`
}

func eventsResponse(uid string, events []event.Event) eventsDTO {
	out := eventsDTO{UID: uid, Events: make([]eventDTO, 0, len(events))}
	for _, evt := range events {
		out.Events = append(out.Events, eventDTO{
			ID:        evt.ID,
			Seq:       evt.Seq,
			Type:      string(evt.Type),
			DayKey:    string(evt.DayKey),
			CreatedAt: evt.CreatedAt,
			Payload:   evt.Payload,
		})
	}
	return out
}

type overviewRowDTO struct {
	UID         string         `json:"uid"`
	DisplayName string         `json:"displayName,omitempty"`
	Timezone    string         `json:"timezone"`
	LastSeq     uint64         `json:"lastSeq"`
	Projection  *projectionDTO `json:"projection,omitempty"`
}

type overviewDTO struct {
	Users []overviewRowDTO `json:"users"`
}

func overviewResponse(rows []app.OverviewRow) overviewDTO {
	out := overviewDTO{Users: make([]overviewRowDTO, 0, len(rows))}
	for _, row := range rows {
		dto := overviewRowDTO{
			UID:         row.UserID,
			DisplayName: row.DisplayName,
			Timezone:    row.Timezone,
			LastSeq:     row.LastSeq,
		}
		if row.Projection != nil {
			p := projectionResponse(*row.Projection)
			dto.Projection = &p
		}
		out.Users = append(out.Users, dto)
	}
	return out
}
