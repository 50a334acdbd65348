package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/civicdesk/server/internal/requests"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(q.Get("limit"), 10)
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	filter := requests.ListFilter{
		Page:        page,
		Limit:       limit,
		ServiceName: q.Get("service_name"),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := requests.ParseStatus(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		filter.Status = status
	}

	records, total, err := s.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests":    records,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": (total + limit - 1) / limit,
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetByID(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type statusUpdateRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	status, err := requests.ParseStatus(body.Status)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	rec, err := s.store.UpdateStatus(r.Context(), chi.URLParam(r, "requestID"), status, body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "request status updated",
		"request_id": rec.RequestID,
		"new_status": rec.Status,
		"updated_at": rec.UpdatedAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
