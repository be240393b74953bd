package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tabload/internal/config"
	"github.com/JonMunkholm/tabload/internal/core"
	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/logging"
	"github.com/JonMunkholm/tabload/internal/source"
	"github.com/JonMunkholm/tabload/internal/web"
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

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"source_dir", cfg.Ingest.SourceDir,
		"max_concurrent", cfg.Ingest.MaxConcurrent,
		"checkpoints", cfg.Ingest.Checkpoint,
	)

	ctx := context.Background()
	backend, err := database.Connect(ctx, cfg.Database.Driver, cfg.Database.PoolConfig())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	slog.Info("connected to database", "driver", backend.Exec.Dialect().Name)

	var checkpoints core.Checkpointer
	if cfg.Ingest.Checkpoint {
		if err := backend.InitCheckpoints(ctx); err != nil {
			slog.Error("failed to prepare checkpoints", "error", err)
			os.Exit(1)
		}
		checkpoints = backend.Checkpoints
	}

	opts := cfg.SourceOptions()
	manager := core.NewManager(core.ManagerConfig{
		Exec: backend.Exec,
		Open: func(path string) (core.RowSource, error) {
			return source.Open(path, opts)
		},
		SourceDir:          cfg.Ingest.SourceDir,
		NullMarker:         cfg.Ingest.NullMarker,
		Checkpoints:        checkpoints,
		CheckpointInterval: cfg.Ingest.CheckpointInterval,
		MaxConcurrent:      cfg.Ingest.MaxConcurrent,
		MaxWait:            cfg.Ingest.MaxWaitTime,
	})

	server := web.NewServer(manager, cfg.Server)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Running ingestions pause at a row boundary and keep their checkpoint.
		if status := manager.Limiter().Status(); status.Active > 0 {
			slog.Info("pausing running ingestions", "active", status.Active)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ingestions did not pause in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
