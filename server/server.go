// Package server exposes the companion over HTTP: a JSON API, a websocket
// chat endpoint that also receives check-ins, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/engine"
	"github.com/becomeliminal/nim-companion/internal/applog"
	"github.com/becomeliminal/nim-companion/internal/metrics"
	"github.com/becomeliminal/nim-companion/memory"
)

// Config holds HTTP listener settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// DefaultConfig leaves room in WriteTimeout for a full turn: the reply
// plus a profile extraction.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		Version:      "dev",
	}
}

// Server serves one engine.
type Server struct {
	config   Config
	engine   *engine.Engine
	metrics  *metrics.Metrics
	hub      *Hub
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithConfig replaces the listener settings.
func WithConfig(c Config) Option {
	return func(s *Server) {
		s.config = c
	}
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server for eng.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		config: DefaultConfig(),
		engine: eng,
		hub:    NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the websocket hub. Pass Hub().Deliver to
// engine.StartCheckIns to push check-ins to connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Info("[SERVER] Listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down gracefully and disconnects websocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/conversation/{userID}", s.handleConversation)
		r.Get("/profile/{userID}", s.handleProfile)
		r.Delete("/profile/{userID}", s.handleResetProfile)
		r.Delete("/memory/{userID}", s.handleClearMemory)
		r.Post("/checkin/{userID}", s.handleCheckIn)
	})
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": s.config.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"version":  s.config.Version,
		"sessions": s.engine.Sessions().Len(),
		"clients":  s.hub.Len(),
	})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	MessageCount   int    `json:"message_count"`
	State          string `json:"state"`
	Remembered     bool   `json:"remembered"`
}

func newChatResponse(out *engine.Output) chatResponse {
	return chatResponse{
		Response:       out.Text,
		ConversationID: out.ConversationID,
		MessageCount:   out.MessageCount,
		State:          string(out.State),
		Remembered:     out.Remembered,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	out, err := s.engine.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newChatResponse(out))
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	turns, err := s.engine.History(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"history": turns,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, err := s.engine.Profile(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"profile": p,
	})
}

func (s *Server) handleResetProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetProfile(r.Context(), chi.URLParam(r, "userID")); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearMemory(r.Context(), chi.URLParam(r, "userID")); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	out, err := s.engine.CheckIn(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	s.hub.Deliver(userID, out)
	respondJSON(w, http.StatusOK, newChatResponse(out))
}

// sameOrigin accepts non-browser clients and same-host pages.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(host, r.Host)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondEngineError(w http.ResponseWriter, err error) {
	var me *core.ModelError
	switch {
	case errors.Is(err, core.ErrEmptyUserID), errors.Is(err, core.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, engine.ErrNoConversation), errors.Is(err, engine.ErrAlreadyCheckedIn):
		respondError(w, http.StatusConflict, "checkin_unavailable", err.Error())
	case errors.Is(err, memory.ErrStorageUnavailable):
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
	case errors.As(err, &me):
		respondError(w, http.StatusBadGateway, string(me.Kind), engine.FailureMessage(err))
	default:
		applog.Error("[SERVER] Request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
