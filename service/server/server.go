package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/celf/service/metrics"
	"github.com/brojonat/celf/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP backend-for-frontend that exposes one user's wallet.
type Server struct {
	addr       string
	userID     string
	controller *wallet.Controller
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint and HTTP
// instrumentation are disabled. A nil logger discards logs.
func New(addr, userID string, ctrl *wallet.Controller, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Server{
		addr:       addr,
		userID:     userID,
		controller: ctrl,
		metrics:    m,
		logger:     logger,
	}
}

// Handler builds the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Wallet routes
	mux.Handle("GET /api/v1/wallet", s.instrument("/api/v1/wallet", handleGetWallet(s.controller, s.logger)))
	mux.Handle("GET /api/v1/wallet/transactions", s.instrument("/api/v1/wallet/transactions", handleListTransactions(s.controller, s.logger)))
	mux.Handle("GET /api/v1/wallet/transactions/{id}", s.instrument("/api/v1/wallet/transactions/{id}", handleGetTransaction(s.controller, s.logger)))
	mux.Handle("POST /api/v1/wallet/refresh", s.instrument("/api/v1/wallet/refresh", handleRefresh(s.controller, s.logger)))
	mux.Handle("DELETE /api/v1/wallet/session", s.instrument("/api/v1/wallet/session", handleInvalidateSession(s.controller, s.logger)))

	// SSE streaming endpoint
	mux.Handle("GET /api/v1/stream/wallet", handleStreamWallet(s.controller, s.userID, s.metrics, s.logger))

	// Diagnostics
	mux.Handle("GET /debug/wallet", s.instrument("/debug/wallet", handleDebugDump(s.controller)))
	mux.Handle("POST /debug/wallet/refresh", s.instrument("/debug/wallet/refresh", handleDebugRefresh(s.controller)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Wrap mux with CORS middleware
	return corsMiddleware(mux)
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
