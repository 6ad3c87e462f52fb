// Package api wires the HTTP surface of the backtest service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantfold/backtestd/internal/api/handler"
	"github.com/quantfold/backtestd/internal/api/middleware"
	"github.com/quantfold/backtestd/internal/backtest"
	"github.com/quantfold/backtestd/internal/metrics"
	"github.com/quantfold/backtestd/internal/strategy"
)

// Server is the HTTP server for the backtest service.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg Config, registry *backtest.Registry, strategies *strategy.Engine, obs *metrics.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      Routes(cfg.APIKey, registry, strategies, obs),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the full handler chain. Exposed separately so tests can
// drive the API without binding a socket.
func Routes(apiKey string, registry *backtest.Registry, strategies *strategy.Engine, obs *metrics.Registry) http.Handler {
	mux := http.NewServeMux()

	h := handler.NewBacktestHandler(registry, strategies)
	auth := middleware.APIKeyAuth(apiKey)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/backtests", h.Create)
	api.HandleFunc("GET /api/backtests", h.List)
	api.HandleFunc("GET /api/backtests/{id}", h.Status)
	api.HandleFunc("POST /api/backtests/{id}/start", h.Start)
	api.HandleFunc("POST /api/backtests/{id}/cancel", h.Cancel)
	api.HandleFunc("GET /api/backtests/{id}/results", h.Results)
	api.HandleFunc("GET /api/strategies", h.Strategies)
	mux.Handle("/api/", auth(api))

	mux.HandleFunc("GET /health", handleHealth)
	if obs != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(obs, promhttp.HandlerOpts{}))
	}

	chain := middleware.RequestID()(mux)
	if obs != nil {
		chain = metrics.HTTPMiddleware(obs)(chain)
	}
	return chain
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
