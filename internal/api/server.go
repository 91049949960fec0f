package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/dgallion1/studykit/internal/chat"
	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/pipeline"
	"github.com/dgallion1/studykit/internal/quiz"
	"github.com/dgallion1/studykit/internal/store"
)

// Deps are the services the API dispatches to.
type Deps struct {
	Store        *store.Store
	Orchestrator *pipeline.Orchestrator
	Chats        *chat.Registry
	Quiz         *quiz.Generator
	Stats        *llm.Stats
	ProviderName string
	Bus          *events.Bus
}

// Server is the HTTP API server for studykit.
type Server struct {
	router chi.Router
	deps   Deps
	timers *timerRegistry
	md     goldmark.Markdown
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps:   deps,
		timers: newTimerRegistry(cfg.SessionTTL),
		md:     goldmark.New(),
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// CleanupTimers closes timers idle longer than the session TTL.
func (s *Server) CleanupTimers(now time.Time) int {
	return s.timers.cleanup(now)
}

// Close stops every running timer.
func (s *Server) Close() {
	s.timers.closeAll()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Route("/api/documents", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Get("/", s.handleListDocuments)
			r.Route("/{docID}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/summaries", s.handleSummarize)
				r.Post("/chat", s.handleChat)
				r.Post("/quiz", s.handleQuiz)
			})
		})
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Delete("/api/chat/{sessionID}", s.handleDeleteChat)

		r.Route("/api/timers", func(r chi.Router) {
			r.Post("/", s.handleCreateTimer)
			r.Route("/{timerID}", func(r chi.Router) {
				r.Get("/", s.handleGetTimer)
				r.Delete("/", s.handleDeleteTimer)
				r.Post("/adjust", s.handleAdjustTimer)
				r.Post("/visibility", s.handleTimerVisibility)
				r.Post("/{action}", s.handleTimerAction)
			})
		})

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.deps.Orchestrator.QueueDepth(),
		"sessions":    s.deps.Chats.Len(),
		"timers":      s.timers.len(),
	})
}
