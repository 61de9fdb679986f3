package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/schemafix/internal/config"
	"github.com/JonMunkholm/schemafix/internal/core"
	"github.com/JonMunkholm/schemafix/internal/logging"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"schema_store", cfg.Schema.Store,
		"assist", cfg.Assist.Active(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	rt, err := core.Open(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			slog.Error("no schema definition, set SCHEMA_SEED_DEFAULTS=true or run schemafix schema init",
				"path", cfg.Schema.Path)
		} else {
			slog.Error("failed to start", "error", err)
		}
		os.Exit(1)
	}
	defer rt.Close()

	slog.Info("schema loaded", "fields", rt.Service.Schema().Len())

	server := web.NewServer(rt.Service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running passes to complete (with timeout)
		if status := rt.Service.PassStatus(); status.Active > 0 {
			slog.Info("waiting for passes to complete", "active", status.Active)
			if err := rt.Service.WaitForPasses(shutdownCtx); err != nil {
				slog.Warn("passes did not complete in time", "error", err)
			} else {
				slog.Info("all passes completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
