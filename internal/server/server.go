// Package server provides the HTTP admin API for the discovery service.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lowks/discovery/internal/config"
	"github.com/lowks/discovery/internal/directory"
	"github.com/lowks/discovery/internal/health"
	"github.com/lowks/discovery/internal/metrics"
	"github.com/lowks/discovery/internal/supervisor"
)

// Server is the HTTP admin API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	handlers   *Handlers
	checker    *health.Checker
	logger     *zap.Logger
	cfg        *config.Config
}

// New creates the server and registers its routes.
func New(cfg *config.Config, sup *supervisor.Supervisor, dir *directory.Directory, checker *health.Checker, logger *zap.Logger, m *metrics.Metrics) *Server {
	router := mux.NewRouter()
	s := &Server{
		router:   router,
		handlers: NewHandlers(sup, dir, logger, m),
		checker:  checker,
		logger:   logger,
		cfg:      cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	s.setupRoutes(m)
	return s
}

func (s *Server) setupRoutes(m *metrics.Metrics) {
	middlewares := []func(http.Handler) http.Handler{
		recovery(s.logger),
		requestID,
		logging(s.logger, m),
	}
	if s.cfg.RateLimit.Enabled {
		limiter := rate.NewLimiter(
			rate.Limit(s.cfg.RateLimit.RequestsPerSecond),
			s.cfg.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, rateLimit(limiter, s.logger))
	}
	wrapped := chain(middlewares...)
	s.router.Use(func(next http.Handler) http.Handler {
		return wrapped(next)
	})

	s.router.HandleFunc("/health/live", s.checker.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.checker.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/nodes", s.handlers.ConnectNode).Methods(http.MethodPost)
	v1.HandleFunc("/nodes", s.handlers.ListNodes).Methods(http.MethodGet)
	v1.HandleFunc("/nodes/{node}", s.handlers.GetNode).Methods(http.MethodGet)
	v1.HandleFunc("/nodes/{node}", s.handlers.DisconnectNode).Methods(http.MethodDelete)
	v1.HandleFunc("/services", s.handlers.ListServices).Methods(http.MethodGet)
	v1.HandleFunc("/route/{service}", s.handlers.Route).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, ErrorCodeInvalidRequest, "endpoint not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
	})
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
