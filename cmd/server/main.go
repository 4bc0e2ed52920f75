package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/celf/client"
	"github.com/brojonat/celf/service/config"
	"github.com/brojonat/celf/service/metrics"
	natspkg "github.com/brojonat/celf/service/nats"
	"github.com/brojonat/celf/service/server"
	"github.com/brojonat/celf/service/wallet"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"user_id", cfg.UserID,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Initialize wallet API client
	apiClient := client.NewClient(cfg.APIURL, cfg.APIToken, &http.Client{Timeout: cfg.RequestTimeout}, logger)
	logger.Info("initialized wallet API client", "url", cfg.APIURL)

	// Initialize NATS publisher (optional)
	var notifier wallet.Notifier
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger, m)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = publisher
	} else {
		logger.Warn("NATS_URL not set, wallet update events disabled")
	}

	// Initialize wallet controller
	store := wallet.NewStore(cfg.TransactionWindow)
	ctrl := wallet.NewController(apiClient, store, wallet.ControllerOptions{
		UserID:             cfg.UserID,
		MinRefreshInterval: cfg.MinRefreshInterval,
		RequestTimeout:     cfg.RequestTimeout,
		DisplayWindow:      cfg.DisplayWindow,
		Formatter:          wallet.NewFormatter(cfg.Locale, cfg.Location, logger),
		Notifier:           notifier,
		Metrics:            m,
		Logger:             logger,
	})

	// Fetch on mount, then refresh automatically
	go func() {
		if err := ctrl.Run(ctx, cfg.RefreshInterval); err != nil && err != context.Canceled {
			logger.Error("refresh loop stopped", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg.UserID, ctrl, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"refresh_interval", cfg.RefreshInterval,
		"min_refresh_interval", cfg.MinRefreshInterval,
		"transaction_window", cfg.TransactionWindow,
		"nats_enabled", notifier != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Stop the refresh loop first
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
