// Package api exposes the intake agent, request store and knowledge base
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/civicdesk/server/internal/agent"
	"github.com/civicdesk/server/internal/agent/model"
	errx "github.com/civicdesk/server/internal/core/error"
	"github.com/civicdesk/server/internal/knowledge"
	"github.com/civicdesk/server/internal/requests"
	logx "github.com/civicdesk/server/pkg/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// Config tunes the HTTP surface.
type Config struct {
	Addr          string `envconfig:"HTTP_ADDR" default:":8080"`
	UploadDir     string `envconfig:"UPLOAD_DIR" default:"data/uploads"`
	ChatRateLimit int    `envconfig:"CHAT_RATE_LIMIT" default:"30"`
}

// Server wires the domain components into HTTP handlers.
type Server struct {
	cfg      Config
	agent    *agent.Agent
	store    *requests.SqliteStore
	ingestor *knowledge.Ingestor
	kstore   *knowledge.Store
	history  historyReader
}

type historyReader interface {
	LoadHistory(ctx context.Context, sessionID string) (*model.ConversationHistory, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

func NewServer(cfg Config, ag *agent.Agent, store *requests.SqliteStore, ingestor *knowledge.Ingestor, kstore *knowledge.Store, history historyReader) *Server {
	return &Server{
		cfg:      cfg,
		agent:    ag,
		store:    store,
		ingestor: ingestor,
		kstore:   kstore,
		history:  history,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog)
	r.Use(chimw.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.ChatRateLimit, time.Minute))
		r.Post("/chat", s.handleChat)
	})

	r.Post("/upload", s.handleUpload)

	r.Route("/requests", func(r chi.Router) {
		r.Get("/", s.handleListRequests)
		r.Get("/{requestID}", s.handleGetRequest)
		r.Put("/{requestID}/status", s.handleUpdateStatus)
	})

	r.Get("/stats", s.handleStats)
	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{sessionID}/history", s.handleSessionHistory)
	r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
	r.Get("/namespaces", s.handleNamespaces)
	r.Get("/collections/{namespace}", s.handleCollections)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- middleware ----

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logx.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, map[string]string{"error": appErr.Message})
		return
	}
	logx.Error().Err(err).Msg("unexpected handler error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": errx.SystemErrorMessage})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
