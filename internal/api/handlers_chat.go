package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/civicdesk/server/internal/agent/model"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		badRequest(w, "session_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, "message is required")
		return
	}
	if req.Namespace == "" {
		req.Namespace = "default"
	}

	resp := s.agent.HandleTurn(r.Context(), req.SessionID, req.Namespace, req.Message)
	writeJSON(w, http.StatusOK, resp)
}
