package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/graph"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/metrics"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/negotiation"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/sessions"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/store"
)

// ArchiveReader reads archived turns back. *store.Store and
// *store.SQLiteStore satisfy it.
type ArchiveReader interface {
	Turns(ctx context.Context, sessionID string) ([]store.TurnRow, error)
	Offers(ctx context.Context, sessionID string) ([]store.OfferRow, error)
}

type Options struct {
	Port         int
	CORSOrigins  []string
	Sessions     *sessions.Registry
	Orchestrator *negotiation.Orchestrator
	Archive      ArchiveReader // optional
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

type Server struct {
	router   *chi.Mux
	port     int
	http     *http.Server
	sessions *sessions.Registry
	orch     *negotiation.Orchestrator
	archive  ArchiveReader
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}

	s := &Server{
		router:   router,
		port:     opts.Port,
		sessions: opts.Sessions,
		orch:     opts.Orchestrator,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}

	router.Get("/health", s.health)
	router.Post("/negotiate", s.negotiate)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}

	router.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/summary", s.summary)
		r.Get("/turns", s.turns)
		r.Delete("/", s.endSession)
	})

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "AI Negotiator API is running",
	})
}

type negotiateRequest struct {
	UserInput string `json:"userInput" validate:"required"`
	SessionID string `json:"sessionId" validate:"max=256"`
}

type negotiateResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) {
	var req negotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var reply negotiation.Reply
	err := s.sessions.Do(r.Context(), req.SessionID, func(sess *negotiation.Session) error {
		reply = s.orch.Handle(r.Context(), sess, req.UserInput)
		return nil
	})
	if err != nil {
		s.logger.Warn("negotiation request abandoned", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "session is busy")
		return
	}

	// Generator failures are reported in-band, as the reply text.
	writeJSON(w, http.StatusOK, negotiateResponse{Reply: reply.Text})
}

type summaryResponse struct {
	SessionID string         `json:"session_id"`
	Summary   string         `json:"summary"`
	Turns     int            `json:"turns"`
	Limits    []int          `json:"limits"`
	Concluded bool           `json:"concluded"`
	Graph     graph.Snapshot `json:"graph"`
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.Peek(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var resp summaryResponse
	err := s.sessions.Do(r.Context(), id, func(sess *negotiation.Session) error {
		resp = summaryResponse{
			SessionID: sess.ID,
			Summary:   sess.Graph.Summary(),
			Turns:     sess.Graph.TurnCount(),
			Limits:    sess.Graph.LimitHistory(),
			Concluded: sess.Concluded(),
			Graph:     sess.Graph.Snapshot(),
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session is busy")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type turnsResponse struct {
	SessionID string           `json:"session_id"`
	Turns     []store.TurnRow  `json:"turns"`
	Offers    []store.OfferRow `json:"offers"`
}

func (s *Server) turns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotImplemented, "no archive configured")
		return
	}
	id := chi.URLParam(r, "id")

	turns, err := s.archive.Turns(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to read archived turns", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	offers, err := s.archive.Offers(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to read archived offers", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}
	if len(turns) == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, turnsResponse{SessionID: id, Turns: turns, Offers: offers})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Remove(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Info("session ended", "session_id", id, "reason", "api")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
