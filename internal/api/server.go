package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/cvchat/internal/chat"
	"github.com/dgallion1/cvchat/internal/claude"
	"github.com/dgallion1/cvchat/internal/config"
	"github.com/dgallion1/cvchat/internal/pipeline"
	"github.com/dgallion1/cvchat/internal/store"
)

// Server is the HTTP API server for cvchat.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        store.Store
	chat         *chat.Service
	claude       *claude.Client
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. llm may be nil when
// classification runs on rules only.
func NewServer(orch *pipeline.Orchestrator, svc *chat.Service, llm *claude.Client, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		orchestrator: orch,
		store:        orch.Store(),
		chat:         svc,
		claude:       llm,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
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

		r.Post("/api/cvs", s.handleUpload)
		r.Post("/api/cvs/batch", s.handleBatchUpload)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)

		r.Get("/api/cvs", s.handleListCVs)
		r.Route("/api/cvs/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetCV)
			r.Delete("/", s.handleDeleteCV)
			r.Get("/sections", s.handleOutline)
			r.Get("/sections/{category}", s.handleGetSection)
			r.Post("/sections/{category}", s.handleEditSection)
			r.Post("/chat", s.handleChat)
			r.Get("/revisions/{rev}/diff", s.handleRevisionDiff)
		})

		r.Post("/api/classify", s.handleClassify)
		r.Post("/api/extract", s.handleExtract)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"llm":         s.claude != nil,
	})
}
