package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bitesbytes/internal/backend"
	"bitesbytes/internal/cache"
	"bitesbytes/internal/cli"
	apphttp "bitesbytes/internal/http"
	"bitesbytes/internal/log"
	"bitesbytes/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	opts, err := cli.PipelineOptions(cfg)
	if err != nil {
		cli.Fatal(logger, "Failed to load report rules", err)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	reports := services.NewReportService(result.Backend, opts, cfg.CacheTTL, logger)

	caches := cache.NewManager()
	caches.Register(reports.Cache())
	caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, reports, logger)
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting bitesbytes server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"strict_categories", cfg.StrictCategories,
		"cache_ttl", cfg.CacheTTL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
