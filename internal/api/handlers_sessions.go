package api

import (
	"net/http"
	"strings"

	"github.com/civicdesk/server/internal/agent/session"
	"github.com/civicdesk/server/internal/knowledge"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snapshots := s.agent.Sessions().Snapshots()
	byID := make(map[string]session.Snapshot, len(snapshots))
	for _, snap := range snapshots {
		byID[snap.SessionID] = snap
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions": len(snapshots),
		"sessions":        byID,
	})
}

type historyEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	history, err := s.history.LoadHistory(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(history.Messages) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	entries := make([]historyEntry, 0, len(history.Messages))
	for _, msg := range history.Messages {
		role := "assistant"
		if msg.Role == schema.User {
			role = "user"
		}
		entries = append(entries, historyEntry{Role: role, Content: msg.Content})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"history":       entries,
		"message_count": len(entries),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	s.agent.Sessions().Remove(sessionID)
	if err := s.history.ClearHistory(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "session deleted",
		"session_id": sessionID,
	})
}

func (s *Server) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	collections, err := s.kstore.Collections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	namespaces := make([]string, 0, len(collections))
	for _, c := range collections {
		if ns, ok := strings.CutPrefix(c, "documents_"); ok {
			namespaces = append(namespaces, ns)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespaces": namespaces})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	target := knowledge.CollectionForNamespace(namespace)

	collections, err := s.kstore.Collections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	matched := make([]map[string]any, 0, 1)
	for _, c := range collections {
		if c != target && !strings.HasPrefix(c, target) {
			continue
		}
		count, err := s.kstore.CountChunks(r.Context(), c)
		if err != nil {
			writeError(w, err)
			return
		}
		matched = append(matched, map[string]any{"name": c, "chunks": count})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"namespace":         namespace,
		"collections":       matched,
		"total_collections": len(collections),
	})
}
