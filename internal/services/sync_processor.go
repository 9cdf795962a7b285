package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bitesbytes/internal/log"
	"bitesbytes/internal/storage"
	"bitesbytes/internal/store"
)

// SyncStore is the part of the sqlite repository the processor needs.
type SyncStore interface {
	GetRecord(ctx context.Context, id int64) (*storage.Record, error)
	GetPendingSyncRecords(ctx context.Context, limit int) ([]storage.PendingSyncRecord, error)
	ClaimForSync(ctx context.Context, id int64) (bool, error)
	ResetStaleProcessing(ctx context.Context) (int64, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64, reason string) error
	RetryFailedSyncs(ctx context.Context, maxAttempts int) (int64, error)
	SyncStats(ctx context.Context) (map[string]int64, error)
}

// StorageError is returned by SyncRecord when the local row could not be read.
type StorageError struct {
	ID  int64
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("get record %d: %v", e.ID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending records (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of records to mirror per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is how many failed attempts a record gets before it stays
	// in the error state (default: 3)
	MaxRetries int

	// RetryInterval is how often errored records are put back to pending (default: 5m)
	RetryInterval time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:  10 * time.Second,
		BatchSize:     10,
		MaxRetries:    3,
		RetryInterval: 5 * time.Minute,
	}
}

// SyncProcessor mirrors sqlite records into another record store. It serves
// single records on demand (AMQP messages) and polls for pending rows that
// no message covered.
type SyncProcessor struct {
	storage SyncStore
	mirror  store.RecordWriter
	config  SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(storage SyncStore, mirror store.RecordWriter, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		storage: storage,
		mirror:  mirror,
		config:  config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	p.ResetStale(ctx)

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Sync processor started",
		log.FieldComponent, log.ComponentWorker,
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	close(stopCh)
	p.mu.Unlock()

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully", log.FieldComponent, log.ComponentWorker)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out", log.FieldComponent, log.ComponentWorker)
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	retryTicker := time.NewTicker(p.config.RetryInterval)
	defer retryTicker.Stop()

	p.processBatch(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-retryTicker.C:
			p.retryFailed(ctx)
		}
	}
}

func (p *SyncProcessor) processBatch(ctx context.Context) {
	if _, _, err := p.ProcessPending(ctx, p.config.BatchSize); err != nil {
		slog.ErrorContext(ctx, "Failed to process pending records", log.FieldComponent, log.ComponentWorker, "error", err)
	}
}

// ProcessPending mirrors up to limit pending records and reports how many
// were synced and how many failed.
func (p *SyncProcessor) ProcessPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := p.storage.GetPendingSyncRecords(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending records: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.DebugContext(ctx, "Processing pending records", log.FieldComponent, log.ComponentWorker, "count", len(pending))

	p.mu.Lock()
	stopCh := p.stopCh
	p.mu.Unlock()

	for _, item := range pending {
		select {
		case <-stopCh:
			return synced, failed, nil
		case <-ctx.Done():
			return synced, failed, ctx.Err()
		default:
		}

		if err := p.SyncRecord(ctx, item.ID); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// SyncRecord mirrors one record. The row is claimed first, so a record that
// is already synced, or being mirrored by another caller, is skipped. A
// record that cannot be mirrored is marked with the error and the error is
// returned.
func (p *SyncProcessor) SyncRecord(ctx context.Context, id int64) error {
	rec, err := p.storage.GetRecord(ctx, id)
	if err != nil {
		return &StorageError{ID: id, Err: err}
	}
	if rec.SyncStatus != storage.SyncPending {
		slog.DebugContext(ctx, "Record not pending, skipping", log.FieldComponent, log.ComponentWorker, "id", id, "status", rec.SyncStatus)
		return nil
	}

	claimed, err := p.storage.ClaimForSync(ctx, id)
	if err != nil {
		return &StorageError{ID: id, Err: err}
	}
	if !claimed {
		slog.DebugContext(ctx, "Record claimed elsewhere", log.FieldComponent, log.ComponentWorker, "id", id)
		return nil
	}

	entry, err := rec.Entry()
	if err != nil {
		p.markError(ctx, id, err)
		return err
	}

	ref, err := p.mirror.Append(ctx, entry)
	if err != nil {
		err = fmt.Errorf("append to mirror: %w", err)
		p.markError(ctx, id, err)
		return err
	}

	if err := p.storage.MarkSynced(ctx, id); err != nil {
		// The mirror write went through; only the bookkeeping failed.
		slog.WarnContext(ctx, "Failed to mark record as synced", log.FieldComponent, log.ComponentWorker, "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Synced record",
		log.FieldComponent, log.ComponentWorker,
		"id", id,
		log.FieldRecordRef, ref,
		log.FieldCategory, rec.Category,
		log.FieldAmount, rec.Amount)

	return nil
}

func (p *SyncProcessor) markError(ctx context.Context, id int64, cause error) {
	slog.WarnContext(ctx, "Record sync failed", log.FieldComponent, log.ComponentWorker, "id", id, "error", cause)
	if err := p.storage.MarkSyncError(ctx, id, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", log.FieldComponent, log.ComponentWorker, "id", id, "error", err)
	}
}

// ResetStale puts records left in processing by an earlier run back to
// pending.
func (p *SyncProcessor) ResetStale(ctx context.Context) {
	n, err := p.storage.ResetStaleProcessing(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing records", log.FieldComponent, log.ComponentWorker, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale processing records", log.FieldComponent, log.ComponentWorker, "count", n)
	}
}

func (p *SyncProcessor) retryFailed(ctx context.Context) {
	n, err := p.RetryFailed(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to requeue errored records", log.FieldComponent, log.ComponentWorker, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Requeued errored records", log.FieldComponent, log.ComponentWorker, "count", n)
	}
}

// RetryFailed puts errored records under the retry limit back to pending.
func (p *SyncProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailedSyncs(ctx, p.config.MaxRetries)
}

// Stats returns record counts per sync status
func (p *SyncProcessor) Stats(ctx context.Context) (map[string]int64, error) {
	return p.storage.SyncStats(ctx)
}
