// Package httpapi exposes the streak compute service over HTTP JSON.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	platformerrors "github.com/morningpages/streakd/internal/platform/errors"
	"github.com/morningpages/streakd/internal/services/streak/app"
	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/routepath"
)

// Handler serves the streak HTTP surface.
type Handler struct {
	svc *app.Service
}

// NewHandler builds a handler around the compute service.
func NewHandler(svc *app.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes attaches the streak HTTP surface to a mux.
func RegisterRoutes(mux *http.ServeMux, svc *app.Service) {
	h := NewHandler(svc)
	mux.HandleFunc(routepath.ComputeProjection, h.handleComputeProjection)
	mux.HandleFunc(routepath.ExplainProjection, h.handleExplainProjection)
	mux.HandleFunc(routepath.ComputeBatch, h.handleComputeBatch)
	mux.HandleFunc(routepath.UserEvents, h.handleUserEvents)
	mux.HandleFunc(routepath.UsersOverview, h.handleUsersOverview)
	mux.HandleFunc(routepath.Healthz, h.handleHealthz)
}

func (h *Handler) handleComputeProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	uid := r.URL.Query().Get("uid")
	p, err := h.svc.ComputeProjection(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectionResponse(p))
}

func (h *Handler) handleExplainProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	query := r.URL.Query()
	uid := query.Get("uid")
	var opts app.ExplainOptions
	if raw := strings.TrimSpace(query.Get("untilSeq")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "untilSeq must be a non-negative integer")
			return
		}
		opts.UntilSeq = parsed
	}
	if raw := strings.TrimSpace(query.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "days must be a positive integer")
			return
		}
		opts.Days = parsed
	}
	report, err := h.svc.ExplainProjection(r.Context(), uid, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type batchRequest struct {
	UIDs []string `json:"uids"`
}

type batchItemResponse struct {
	UID        string         `json:"uid"`
	Projection *projectionDTO `json:"projection,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type batchResponse struct {
	Results   []batchItemResponse `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

func (h *Handler) handleComputeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a uids array")
		return
	}
	items, err := h.svc.ComputeBatch(r.Context(), req.UIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := batchResponse{Results: make([]batchItemResponse, 0, len(items))}
	for _, item := range items {
		out := batchItemResponse{UID: item.UserID}
		if item.Err != nil {
			out.Error = item.Err.Error()
			resp.Failed++
		} else {
			dto := projectionResponse(item.Projection)
			out.Projection = &dto
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	query := r.URL.Query()
	uid := query.Get("uid")

	var from, to calendar.DayKey
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		day, err := calendar.ParseDayKey(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "from must be YYYY-MM-DD")
			return
		}
		from = day
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		day, err := calendar.ParseDayKey(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "to must be YYYY-MM-DD")
			return
		}
		to = day
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	desc := false
	switch strings.TrimSpace(query.Get("order")) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "order must be asc or desc")
		return
	}

	events, err := h.svc.ListUserEvents(r.Context(), uid, from, to, desc, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse(uid, events))
}

func (h *Handler) handleUsersOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	rows, err := h.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overviewResponse(rows))
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeServiceError(w http.ResponseWriter, err error) {
	code := platformerrors.CodeOf(err)
	writeJSONError(w, code.HTTPStatus(), string(code), err.Error())
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
