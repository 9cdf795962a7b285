package main

import (
	"context"
	"errors"
	"time"

	"bitesbytes/internal/amqp"
	"bitesbytes/internal/backend"
	"bitesbytes/internal/cli"
	"bitesbytes/internal/log"
	"bitesbytes/internal/services"
	"bitesbytes/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting bitesbytes-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateSheetsMirror(); err != nil {
		cli.Fatal(logger, "Worker configuration invalid", err)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	mirror, err := backend.NewSheetsClient(context.Background(), backendConfig)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize sheets mirror", err)
	}
	logger.Info("Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	procConfig := services.DefaultSyncProcessorConfig()
	procConfig.PollInterval = cfg.SyncInterval
	procConfig.BatchSize = cfg.SyncBatchSize
	processor := services.NewSyncProcessor(repo, mirror, procConfig)
	syncWorker := worker.NewSyncWorker(processor, cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Sync processor stop", log.FieldError, err)
		}
	})

	logger.Info("Performing startup sync check", log.FieldOperation, log.OpStartup)
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", log.FieldError, err)
	}

	if err := processor.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start sync processor", err)
	}

	go func() {
		err := amqpClient.ConsumeRecordSync(ctx, syncWorker.HandleSyncMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption stopped", log.FieldComponent, log.ComponentAMQP, log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	if stats, err := processor.Stats(context.Background()); err == nil {
		logger.Info("Worker stopped", "sync_stats", stats)
	}
}
