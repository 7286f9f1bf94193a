package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthwire/internal/config"
	"healthwire/internal/logger"
	"healthwire/internal/persistence"
	"healthwire/internal/pipeline"
)

// Runner executes the pipelines the trigger API can start
type Runner interface {
	RunIngestion(ctx context.Context) (*pipeline.IngestionStats, error)
	RunViewpoints(ctx context.Context) (*pipeline.ViewpointStats, error)
	RunRoundtable(ctx context.Context) (*pipeline.RoundtableStats, error)
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         persistence.Database
	runner     Runner
	gatherer   prometheus.Gatherer
	config     config.Server
	log        *slog.Logger

	// runs started by the API outlive the request and stop on Shutdown
	runCtx    context.Context
	cancelRun context.CancelFunc
	mu        sync.Mutex
	active    map[string]bool
	wg        sync.WaitGroup
}

// New creates a new HTTP server instance. A nil gatherer serves the default
// Prometheus registry.
func New(db persistence.Database, runner Runner, gatherer prometheus.Gatherer, cfg config.Server) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	runCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		router:    chi.NewRouter(),
		db:        db,
		runner:    runner,
		gatherer:  gatherer,
		config:    cfg,
		log:       logger.Get(),
		runCtx:    runCtx,
		cancelRun: cancel,
		active:    make(map[string]bool),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(securityHeaders)
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/runs", func(r chi.Router) {
		r.Use(s.requireAdminAPI)
		r.Use(noCache)
		r.Post("/ingestion", s.handleTrigger(pipeline.NameIngestion, func(ctx context.Context) (any, error) {
			return s.runner.RunIngestion(ctx)
		}))
		r.Post("/viewpoints", s.handleTrigger(pipeline.NameViewpoints, func(ctx context.Context) (any, error) {
			return s.runner.RunViewpoints(ctx)
		}))
		r.Post("/roundtable", s.handleTrigger(pipeline.NameRoundtable, func(ctx context.Context) (any, error) {
			return s.runner.RunRoundtable(ctx)
		}))
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown stops accepting requests, cancels triggered runs and waits for
// them to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	err := s.httpServer.Shutdown(ctx)
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("Triggered runs still active at shutdown deadline")
	}

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Wait blocks until every triggered run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}
