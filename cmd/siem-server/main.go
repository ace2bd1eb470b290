// Package main is the entry point for the SIEM alert server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostline-siem/internal/api"
	"hostline-siem/internal/config"
	"hostline-siem/internal/fim"
	"hostline-siem/internal/logging"
	"hostline-siem/internal/middleware"
	"hostline-siem/internal/startup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"storage_backend", cfg.Storage.Backend,
		"log_dir", cfg.Detection.Source.Dir,
		"window_state", cfg.Detection.Window.State,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := startup.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to assemble pipeline", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	// One integrity pass at startup so change records are in place
	// before the first detection run.
	if cfg.FIM.Enabled {
		agent := fim.NewAgent(cfg.FIM.Agent, logger)
		if _, err := agent.Run(ctx); err != nil {
			slog.Warn("integrity pass failed", "error", err)
		}
	}

	handler := api.NewHandler(components.Store, components.Intel, components.Detect, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	limiter := middleware.NewRateLimiter(cfg.RateLimit, logger)
	defer limiter.Stop()

	wrapped := middleware.Chain(mux,
		middleware.RequestID,
		middleware.SecurityHeaders,
		middleware.Recovery(logger),
		limiter.Middleware,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting alert server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("shutdown complete")
}
