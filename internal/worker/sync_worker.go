// Package worker mirrors records saved in sqlite into the spreadsheet, driven
// by AMQP sync messages with a polling fallback.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bitesbytes/internal/amqp"
	"bitesbytes/internal/core"
	"bitesbytes/internal/log"
	"bitesbytes/internal/services"
)

// SyncWorker handles synchronization of records from SQLite to the mirror
type SyncWorker struct {
	processor *services.SyncProcessor
	batchSize int
}

func NewSyncWorker(processor *services.SyncProcessor, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SyncWorker{
		processor: processor,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single record sync message from AMQP. Only
// storage failures are returned, so the message is requeued; a failed mirror
// write is recorded on the row and left to the retry pass.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		log.FieldComponent, log.ComponentWorker,
		"id", msg.ID,
		"version", msg.Version)

	err := w.processor.SyncRecord(ctx, msg.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrRecordNotFound):
		slog.WarnContext(ctx, "Sync message for unknown record dropped", log.FieldComponent, log.ComponentWorker, "id", msg.ID)
		return nil
	case isStorageError(err):
		return fmt.Errorf("sync record %d: %w", msg.ID, err)
	default:
		return nil
	}
}

// ProcessPendingRecords mirrors records that haven't been synced yet. It
// covers AMQP messages that were lost or never published.
func (w *SyncWorker) ProcessPendingRecords(ctx context.Context) error {
	synced, failed, err := w.processor.ProcessPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("process pending records: %w", err)
	}
	if synced+failed > 0 {
		slog.InfoContext(ctx, "Processed pending records",
			log.FieldComponent, log.ComponentWorker,
			"synced", synced,
			"errors", failed)
	}
	return nil
}

// StartupSyncCheck mirrors a larger backlog once at worker start, after
// requeueing records that failed or were left in processing before the last
// shutdown.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	w.processor.ResetStale(ctx)

	if n, err := w.processor.RetryFailed(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to requeue errored records", log.FieldComponent, log.ComponentWorker, "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Requeued errored records", log.FieldComponent, log.ComponentWorker, "count", n)
	}

	synced, failed, err := w.processor.ProcessPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending records for startup check: %w", err)
	}

	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending records found on startup", log.FieldComponent, log.ComponentWorker)
		return nil
	}

	slog.InfoContext(ctx, "Startup sync completed",
		log.FieldComponent, log.ComponentWorker,
		"total", synced+failed,
		"synced", synced,
		"errors", failed)

	return nil
}

// isStorageError reports whether err came from reading the local row rather
// than from the mirror write.
func isStorageError(err error) bool {
	var se *services.StorageError
	return errors.As(err, &se)
}
