package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/morningpages/streakd/internal/services/streak/app"
	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/routepath"
	"github.com/morningpages/streakd/internal/services/streak/storage/sqlite"
)

const testTZ = "Asia/Seoul"

func newTestMux(t *testing.T, cutoff time.Time) (*http.ServeMux, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "streak.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := app.NewService(store, app.WithNow(func() time.Time { return cutoff }))
	t.Cleanup(svc.Flush)

	mux := http.NewServeMux()
	RegisterRoutes(mux, svc)
	return mux, store
}

func appendPost(t *testing.T, store *sqlite.Store, userID string, day calendar.DayKey, hour int) {
	t.Helper()
	loc := calendar.Location(testTZ)
	_, err := store.AppendEvent(context.Background(), event.Event{
		ID:        fmt.Sprintf("evt-%s-%d", day, hour),
		UserID:    userID,
		CreatedAt: day.StartIn(loc).Add(time.Duration(hour) * time.Hour),
		DayKey:    day,
		Type:      event.TypePostCreated,
		Payload:   json.RawMessage(`{"postId":"p1"}`),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func cutoffAt(day calendar.DayKey, hour int) time.Time {
	return day.StartIn(calendar.Location(testTZ)).Add(time.Duration(hour) * time.Hour)
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestComputeProjectionEndpoint(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-08", 15))
	appendPost(t, store, "u1", "2024-01-08", 9)

	rec := doRequest(t, mux, http.MethodGet, routepath.ComputeProjection+"?uid=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %s", ct)
	}

	var resp struct {
		Status struct {
			Type string `json:"type"`
		} `json:"status"`
		CurrentStreak        int     `json:"currentStreak"`
		LastContributionDate *string `json:"lastContributionDate"`
		AppliedSeq           uint64  `json:"appliedSeq"`
		ProjectorVersion     string  `json:"projectorVersion"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status.Type != "onStreak" {
		t.Fatalf("status = %s, want onStreak", resp.Status.Type)
	}
	if resp.CurrentStreak != 1 || resp.AppliedSeq != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.LastContributionDate == nil || *resp.LastContributionDate != "2024-01-08" {
		t.Fatalf("lastContributionDate = %v", resp.LastContributionDate)
	}
}

func TestComputeProjectionDeadlineEncoding(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-09", 15))
	appendPost(t, store, "u1", "2024-01-08", 9) // Mon; Tue closes without a post

	rec := doRequest(t, mux, http.MethodGet, routepath.ComputeProjection+"?uid=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Status struct {
			Type          string `json:"type"`
			PostsRequired *int   `json:"postsRequired"`
			CurrentPosts  *int   `json:"currentPosts"`
			Deadline      *struct {
				Seconds     int64 `json:"seconds"`
				Nanoseconds int   `json:"nanoseconds"`
			} `json:"deadline"`
		} `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status.Type != "eligible" {
		t.Fatalf("status = %s, want eligible", resp.Status.Type)
	}
	if resp.Status.PostsRequired == nil || *resp.Status.PostsRequired != 2 {
		t.Fatalf("postsRequired = %v, want 2", resp.Status.PostsRequired)
	}
	if resp.Status.Deadline == nil {
		t.Fatal("deadline missing")
	}
	// Two working days after Tue 2024-01-09 end at Seoul midnight of Thu.
	want := calendar.DayKey("2024-01-11").EndIn(calendar.Location(testTZ))
	if resp.Status.Deadline.Seconds != want.Unix() {
		t.Fatalf("deadline seconds = %d, want %d", resp.Status.Deadline.Seconds, want.Unix())
	}
}

func TestComputeProjectionMissingUID(t *testing.T) {
	mux, _ := newTestMux(t, cutoffAt("2024-01-08", 15))

	rec := doRequest(t, mux, http.MethodGet, routepath.ComputeProjection, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" || resp.Message == "" {
		t.Fatalf("error body = %+v", resp)
	}
}

func TestComputeProjectionRejectsPost(t *testing.T) {
	mux, _ := newTestMux(t, cutoffAt("2024-01-08", 15))
	rec := doRequest(t, mux, http.MethodPost, routepath.ComputeProjection+"?uid=u1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestExplainProjectionEndpoint(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-09", 15))
	appendPost(t, store, "u1", "2024-01-08", 9)

	rec := doRequest(t, mux, http.MethodGet, routepath.ExplainProjection+"?uid=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		UserID string `json:"userId"`
		Steps  []struct {
			Event struct {
				Type    string `json:"type"`
				Virtual bool   `json:"virtual"`
			} `json:"event"`
		} `json:"steps"`
		Summary struct {
			TotalEvents     int `json:"totalEvents"`
			VirtualClosures int `json:"virtualClosures"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "u1" {
		t.Fatalf("userId = %s, want u1", resp.UserID)
	}
	if resp.Summary.TotalEvents != 3 || resp.Summary.VirtualClosures != 2 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
	if len(resp.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(resp.Steps))
	}
}

func TestComputeBatchEndpoint(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-08", 15))
	appendPost(t, store, "u1", "2024-01-08", 9)
	appendPost(t, store, "u2", "2024-01-08", 10)

	body := `{"uids":["u1","u2",""]}`
	rec := doRequest(t, mux, http.MethodPost, routepath.ComputeBatch, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Results []struct {
			UID   string `json:"uid"`
			Error string `json:"error"`
		} `json:"results"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Succeeded != 2 || resp.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 2/1", resp.Succeeded, resp.Failed)
	}
	if resp.Results[2].Error == "" {
		t.Fatal("empty uid must carry an error")
	}
}

func TestComputeBatchEmptyMeansAllUsers(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-08", 15))
	appendPost(t, store, "u1", "2024-01-08", 9)
	appendPost(t, store, "u2", "2024-01-08", 10)

	rec := doRequest(t, mux, http.MethodPost, routepath.ComputeBatch, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Results []struct {
			UID string `json:"uid"`
		} `json:"results"`
		Succeeded int `json:"succeeded"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 || resp.Succeeded != 2 {
		t.Fatalf("results = %+v succeeded = %d", resp.Results, resp.Succeeded)
	}
}

func TestComputeBatchRejectsMalformedBody(t *testing.T) {
	mux, _ := newTestMux(t, cutoffAt("2024-01-08", 15))
	rec := doRequest(t, mux, http.MethodPost, routepath.ComputeBatch, `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUserEventsEndpoint(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-10", 15))
	appendPost(t, store, "u1", "2024-01-08", 9)
	appendPost(t, store, "u1", "2024-01-09", 9)
	appendPost(t, store, "u1", "2024-01-10", 9)

	rec := doRequest(t, mux, http.MethodGet,
		routepath.UserEvents+"?uid=u1&from=2024-01-09&to=2024-01-10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		UID    string `json:"uid"`
		Events []struct {
			Seq    uint64 `json:"seq"`
			Type   string `json:"type"`
			DayKey string `json:"dayKey"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(resp.Events))
	}
	if resp.Events[0].DayKey != "2024-01-09" {
		t.Fatalf("first day = %s, want 2024-01-09", resp.Events[0].DayKey)
	}

	rec = doRequest(t, mux, http.MethodGet, routepath.UserEvents+"?uid=u1&order=desc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("desc status = %d, body %s", rec.Code, rec.Body)
	}
	resp.Events = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode desc: %v", err)
	}
	if len(resp.Events) != 3 || resp.Events[0].DayKey != "2024-01-10" {
		t.Fatalf("desc events = %+v", resp.Events)
	}
}

func TestUserEventsRejectsBadDay(t *testing.T) {
	mux, _ := newTestMux(t, cutoffAt("2024-01-10", 15))
	rec := doRequest(t, mux, http.MethodGet, routepath.UserEvents+"?uid=u1&from=jan-8", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUserEventsRejectsBadOrder(t *testing.T) {
	mux, _ := newTestMux(t, cutoffAt("2024-01-10", 15))
	rec := doRequest(t, mux, http.MethodGet, routepath.UserEvents+"?uid=u1&order=sideways", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUsersOverviewEndpoint(t *testing.T) {
	mux, store := newTestMux(t, cutoffAt("2024-01-08", 15))
	appendPost(t, store, "u1", "2024-01-08", 9)

	rec := doRequest(t, mux, http.MethodGet, routepath.UsersOverview, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Users []struct {
			UID      string `json:"uid"`
			Timezone string `json:"timezone"`
			LastSeq  uint64 `json:"lastSeq"`
		} `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].UID != "u1" || resp.Users[0].LastSeq != 1 {
		t.Fatalf("users = %+v", resp.Users)
	}
	if resp.Users[0].Timezone != testTZ {
		t.Fatalf("timezone = %s, want default %s", resp.Users[0].Timezone, testTZ)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	mux, _ := newTestMux(t, cutoffAt("2024-01-08", 15))
	rec := doRequest(t, mux, http.MethodGet, routepath.Healthz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %s", rec.Body)
	}
}
