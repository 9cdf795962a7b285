// Package cli provides common initialization shared by cmd/bitesbytes,
// cmd/bitesbytes-worker and cmd/bites.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bitesbytes/internal/config"
	"bitesbytes/internal/log"
	"bitesbytes/internal/pipeline"
	"bitesbytes/internal/storage"
)

// SetupLogger builds the logger from LOG_LEVEL/LOG_FORMAT for the given
// component and installs it as the slog default.
func SetupLogger(component string) *log.Logger {
	cfg := log.ConfigFromEnv()
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored as the file is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// PipelineOptions derives the report options from the configuration,
// loading the rules file when one is set.
func PipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.Options{Categories: pipeline.FoldIntoExpense}
	if cfg.StrictCategories {
		opts.Categories = pipeline.StrictCategories
	}
	if cfg.RulesFile != "" {
		rules, err := pipeline.LoadRules(cfg.RulesFile)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("load rules: %w", err)
		}
		opts.Rules = rules
	}
	return opts, nil
}

// InitSQLite initializes a SQLite repository with the given path.
// Exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM and a
// channel closed once cleanup has run or timeout has passed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
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

// Fatal logs err and exits.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
