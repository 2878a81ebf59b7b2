// Package cli provides the initialization steps shared by cmd/splitter,
// cmd/splitter-worker and cmd/oauth-init.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"splitter/internal/config"
	applog "splitter/internal/log"
	"splitter/internal/services"
	"splitter/internal/storage"
)

// SetupLogger builds the process logger at the given level and installs it
// as the slog default.
func SetupLogger(level slog.Level) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentApp,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// LevelFromConfig parses LOG_LEVEL, falling back to info.
func LevelFromConfig(cfg *config.Config) slog.Level {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// OpenJournal opens the SQLite sync journal at dbPath.
// Returns the journal or exits the process on failure.
func OpenJournal(dbPath string) *storage.Journal {
	journal, err := storage.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open sync journal", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return journal
}

// SyncConfig applies the SYNC_* settings over the processor defaults.
func SyncConfig(cfg *config.Config) services.SyncProcessorConfig {
	sc := services.DefaultSyncProcessorConfig()
	sc.PollInterval = cfg.SyncInterval
	sc.BatchSize = cfg.SyncBatchSize
	sc.MaxRetries = cfg.SyncMaxRetries
	return sc
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has run.
func GracefulShutdown(timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			slog.Warn("Shutdown timeout reached")
		} else {
			slog.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
