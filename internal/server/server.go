package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/event"
	"github.com/drewdunne/releasetrain/internal/history"
	"github.com/drewdunne/releasetrain/internal/metrics"
	"github.com/drewdunne/releasetrain/internal/train"
	"github.com/drewdunne/releasetrain/internal/webhook"
)

// Runner runs and previews release trains.
type Runner interface {
	Run(ctx context.Context, req train.Request) (*train.Report, error)
	Preview(ctx context.Context, version string) (*train.Preview, error)
}

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// Server is the HTTP server for the release train.
type Server struct {
	cfg          *config.Config
	router       chi.Router
	httpServer   *httpServer
	httpServerMu sync.RWMutex  // protects httpServer pointer
	ready        chan struct{} // closed when server is ready to accept connections
	runner       Runner
	history      history.Store
	eventRouter  *event.Router
}

// Option configures a Server.
type Option func(*Server)

// WithRunner sets the runner behind /prepare and /changelog.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithHistory sets the store behind /runs.
func WithHistory(st history.Store) Option {
	return func(s *Server) { s.history = st }
}

// WithEventRouter sets the router that receives normalized webhook events.
func WithEventRouter(r *event.Router) Option {
	return func(s *Server) { s.eventRouter = r }
}

// New creates a new Server with the given config.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = history.NewMemoryStore(cfg.Storage.Limit)
	}
	s.routes()
	return s
}

// Ready returns a channel that is closed when the server is ready to accept connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Post("/prepare", s.handlePrepare)
	r.Post("/prepare/{version}", s.handlePrepare)
	r.Get("/changelog", s.handleChangelog)

	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)

	if s.cfg.Providers.GitHub.WebhookSecret != "" {
		r.Method(http.MethodPost, "/webhook/github",
			webhook.NewGitHubHandler(s.cfg.Providers.GitHub.WebhookSecret, s.handleGitHubEvent))
	}

	s.router = r
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]interface{}{
		"runner":  s.runner != nil,
		"storage": s.cfg.Storage.Type,
	}

	if hc, ok := s.history.(healthChecker); ok {
		if err := hc.Health(r.Context()); err != nil {
			log.Printf("Storage health check failed: %v", err)
			checks["storage_error"] = err.Error()
			status = "degraded"
		}
	}
	if s.runner == nil {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status: status,
		Checks: checks,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, metrics.Get())
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		http.Error(w, "release train is not configured", http.StatusServiceUnavailable)
		return
	}

	// A run outlives the request that started it so that a disconnecting
	// client cannot leave the branches half moved.
	ctx := context.WithoutCancel(r.Context())
	_, err := s.runner.Run(ctx, train.Request{
		Version: chi.URLParam(r, "version"),
		Trigger: "manual",
	})
	if err != nil {
		respondRunError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK!"))
}

func (s *Server) handleChangelog(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		http.Error(w, "release train is not configured", http.StatusServiceUnavailable)
		return
	}

	preview, err := s.runner.Preview(r.Context(), r.URL.Query().Get("version"))
	if err != nil {
		respondRunError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(preview.HTML))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to list runs: %v", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "run not found")
			return
		}
		log.Printf("Failed to get run: %v", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", "failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGitHubEvent(ctx context.Context, ghEvent *webhook.GitHubEvent) error {
	metrics.WebhookReceived()

	evt, err := event.NormalizeGitHubEvent(ghEvent)
	if err != nil {
		if errors.Is(err, event.ErrUnhandled) {
			log.Printf("Ignoring GitHub %s event (delivery %s)", ghEvent.EventType, ghEvent.DeliveryID)
			return nil
		}
		log.Printf("Failed to normalize GitHub event: %v", err)
		return nil
	}

	if s.eventRouter == nil {
		return nil
	}

	if err := s.eventRouter.Route(ctx, evt); err != nil {
		log.Printf("Failed to route event: %v", err)
	}
	return nil
}
