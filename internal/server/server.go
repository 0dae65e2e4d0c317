// Package server exposes the agent over HTTP: chat, session status polling,
// health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zonewise-dev/zonewise/pkg/agent/config"
	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/executor"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
	"github.com/zonewise-dev/zonewise/pkg/agent/status"
)

// ChatRunner runs one agent turn.
type ChatRunner interface {
	Chat(ctx context.Context, req executor.ChatRequest) (*executor.ChatResult, error)
}

// Server is the HTTP surface of the zoning assistant.
type Server struct {
	cfg      *config.Config
	agent    ChatRunner
	tracker  *status.Tracker
	metrics  *Metrics
	registry *prometheus.Registry
	router   *mux.Router
	log      logr.Logger
}

// New creates a Server.
func New(cfg *config.Config, agent ChatRunner, tracker *status.Tracker, log logr.Logger) *Server {
	registry := prometheus.NewRegistry()
	s := &Server{
		cfg:      cfg,
		agent:    agent,
		tracker:  tracker,
		metrics:  NewMetrics(registry),
		registry: registry,
		log:      log,
	}
	s.router = mux.NewRouter()
	s.setupRoutes()
	return s
}

// Build creates the HTTP server.
func (s *Server) Build() *http.Server {
	return &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Chat turns can legitimately take minutes with retries and
		// grounded queries.
		WriteTimeout: 5 * time.Minute,
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RunSweeper periodically evicts stale session status rows until the
// context is cancelled.
func (s *Server) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Agent.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.tracker.Sweep(s.cfg.Agent.StatusRetention)
			s.metrics.SessionsSwept.Add(float64(removed))
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/chat", s.handleChat).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}/status", s.handleSessionStatus).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

type chatRequest struct {
	Message   string        `json:"message"`
	SessionID string        `json:"sessionId,omitempty"`
	History   []chatMessage `json:"conversationHistory,omitempty"`
}

type chatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "message is required")
		return
	}

	history := make([]*llm.Content, 0, len(req.History))
	for _, m := range req.History {
		role := llm.RoleUser
		if m.Role == "model" || m.Role == "assistant" {
			role = llm.RoleModel
		}
		history = append(history, llm.NewTextContent(role, m.Text))
	}

	result, err := s.agent.Chat(r.Context(), executor.ChatRequest{
		Message:   req.Message,
		SessionID: req.SessionID,
		History:   history,
	})
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues("error").Inc()
		s.log.Error(err, "chat turn failed", "session", req.SessionID)
		if apperrors.Is(err, apperrors.ErrCodeInvalidInput) {
			s.writeError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, err.Error())
			return
		}
		// Detail stays in the session status record; the user gets a
		// generic message.
		s.writeError(w, http.StatusInternalServerError, errorCode(err), executor.GenericFailureMessage)
		return
	}

	s.metrics.ChatRequests.WithLabelValues("ok").Inc()
	s.metrics.ChatDuration.Observe(time.Since(start).Seconds())
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := s.tracker.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, apperrors.ErrCodeSessionNotFound,
			fmt.Sprintf("no session %q", id))
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"app":    "zonewise",
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":             "zonewise",
		"models":          s.cfg.Models.Candidates,
		"retrieval_model": s.cfg.Retrieval.Model,
		"max_iterations":  s.cfg.Agent.MaxIterations,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, httpCode int, code, message string) {
	s.writeJSON(w, httpCode, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func errorCode(err error) string {
	for _, code := range []string{
		apperrors.ErrCodeMaxToolCalls,
		apperrors.ErrCodeModelTimeout,
		apperrors.ErrCodeModelExhausted,
		apperrors.ErrCodeRetrievalFailed,
	} {
		if apperrors.Is(err, code) {
			return code
		}
	}
	return "INTERNAL_ERROR"
}
