// Package http exposes the orchestrator over HTTP: the streaming and
// non-streaming chat endpoints, session inspection, health, metrics and the
// OpenAPI document.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/metrics"
	"github.com/aretw0/waypoint/pkg/orchestrator"
	"github.com/aretw0/waypoint/pkg/ratelimit"
	"github.com/aretw0/waypoint/pkg/streamclient"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves the chat API.
type Server struct {
	svc      *orchestrator.Service
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	maxInput int
	version  string
}

// Option configures the Server.
type Option func(*Server)

// WithLimiter replaces the rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithMetrics configures the collectors served at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxInputSize bounds chat messages, in bytes.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		s.maxInput = n
	}
}

// WithVersion configures the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc *orchestrator.Service, opts ...Option) (http.Handler, error) {
	s := &Server{
		svc:      svc,
		logger:   logging.NewNop(),
		maxInput: MaxInputSizeFromEnv(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.ConfigFromEnv(), ratelimit.WithLogger(s.logger), ratelimit.WithMetrics(s.metrics))
	}

	doc, err := LoadSpec()
	if err != nil {
		return nil, err
	}
	v, err := newValidator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(Spec())
	})

	r.Route("/api/llm", func(r chi.Router) {
		r.Use(rateLimit(s.limiter))
		r.Use(v.middleware)
		r.Post("/stream", s.stream)
		r.Post("/chat", s.chat)
		r.Get("/sessions", s.listSessions)
		r.Get("/session/{id}", s.getSession)
		r.Delete("/session/{id}", s.deleteSession)
	})

	return enableCORS(r), nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// decode reads and sanitizes a chat request. It writes the error response
// and returns false when the request is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request) (orchestrator.Request, bool) {
	var body domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		s.logger.Warn("Invalid request body", "err", err)
		return orchestrator.Request{}, false
	}
	clean, err := SanitizeInput(body.Message, s.maxInput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input: "+err.Error())
		s.logger.Warn("Input rejected", "err", err, "size", len(body.Message))
		return orchestrator.Request{}, false
	}
	body.Message = clean
	if body.SessionID == "" {
		body.SessionID = r.Header.Get("X-Session-Id")
	}
	return orchestrator.RequestFrom(body), true
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	resp, err := s.svc.Chat(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrEmptyMessage):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		s.logger.Error("Chat failed", "session_id", req.SessionID, "err", err)
		writeJSON(w, status, domain.ChatResponse{SessionID: req.SessionID, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, domain.ChatResponse{
		SessionID: resp.SessionID,
		Response:  resp.Response,
		ToolCalls: resp.ToolCalls,
	})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		s.logger.Error("Streaming not supported")
		return
	}
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	start := time.Now()
	err := s.svc.Stream(r.Context(), req, func(ev domain.StreamEvent) error {
		if err := streamclient.WriteFrame(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		s.logger.Info("Stream client disconnected", "session_id", req.SessionID, "err", err)
		return
	}
	s.logger.Debug("Stream finished", "session_id", req.SessionID, "duration", time.Since(start))
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.svc.Sessions().List()})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Sessions().Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Sessions().Clear(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, domain.ErrSessionNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
