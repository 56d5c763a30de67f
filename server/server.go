// Package server assembles the chi router, its middleware stack and the
// HTTP server lifecycle for serve mode.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/patient-records/config"
	"github.com/giygas/patient-records/handlers"
	"github.com/giygas/patient-records/logging"
	"github.com/giygas/patient-records/metrics"
)

// Server is the HTTP front of serve mode.
type Server struct {
	server      *http.Server
	router      chi.Router
	config      *config.Config
	handler     *handlers.HTTPHandlerImpl
	rateLimiter *RateLimiter
	stop        context.CancelFunc
}

// NewServer builds the router for cfg around handler.
func NewServer(cfg *config.Config, handler *handlers.HTTPHandlerImpl) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:           router,
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		router:      router,
		config:      cfg,
		handler:     handler,
		rateLimiter: NewRateLimiter(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.RequestLogger(logging.Logger()))
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Metrics)
	s.router.Use(RequestSizeMiddleware(s.config.MaxRequestBody, s.config.MaxHeaderSize))
	s.router.Use(s.rateLimiter.Middleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/dataset.csv", s.handler.ServeDatasetCSV)
	s.router.Get("/dataset.xlsx", s.handler.ServeDatasetXLSX)
	s.router.Get("/summary", s.handler.ServeSummary)
	s.router.Get("/records/{id}", s.handler.GetRecord)
	s.router.Post("/records", s.handler.PostRecord)
	s.router.Post("/refresh", s.handler.Refresh)
	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.rateLimiter.RunCleanup(ctx, 30*time.Minute)

	logging.Info("Starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires, then closes the
// remaining connections.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	if s.stop != nil {
		s.stop()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		return s.server.Close()
	}

	logging.Info("Server shutdown complete")
	return nil
}
