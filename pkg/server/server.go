package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/colmeta/copilot-dispatch/pkg/audit"
	"github.com/colmeta/copilot-dispatch/pkg/config"
	"github.com/colmeta/copilot-dispatch/pkg/dispatch"
	"github.com/colmeta/copilot-dispatch/pkg/metrics"
)

// Server is the HTTP front end over one dispatcher.
type Server struct {
	config       config.ServerConfig
	metricsCfg   config.MetricsConfig
	dispatcher   *dispatch.Dispatcher
	aggregator   *metrics.Aggregator
	auditStore   audit.Store
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates the HTTP server. auditStore may be nil, in which case
// the audit query endpoint responds 404.
func NewServer(cfg config.ServerConfig, metricsCfg config.MetricsConfig, d *dispatch.Dispatcher, agg *metrics.Aggregator, auditStore audit.Store) *Server {
	return &Server{
		config:       cfg,
		metricsCfg:   metricsCfg,
		dispatcher:   d,
		aggregator:   agg,
		auditStore:   auditStore,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting dispatch server", "address", s.config.ListenAddress)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, draining in-flight dispatches
// within the configured shutdown budget.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("dispatch server stopped")
	})

	return shutdownErr
}

// Stop requests shutdown from another goroutine.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/dispatch", NewDispatchHandler(s.dispatcher))
	mux.Handle("/v1/providers", NewProvidersHandler(s.aggregator))
	mux.Handle("/v1/stats", NewStatsHandler(s.dispatcher))
	mux.Handle("/v1/audit", NewAuditHandler(s.auditStore))
	mux.Handle("/healthz", NewHealthHandler())
	mux.Handle("/readyz", NewReadyHandler(s.aggregator))

	if s.metricsCfg.Enabled {
		mux.Handle(s.metricsCfg.Path, s.aggregator.Handler())
	}

	var handler http.Handler = mux
	handler = RequestIDMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	return handler
}

// Handler returns the configured HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
