package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
	"bitesbytes/internal/store"

	_ "modernc.org/sqlite"
)

// Sync states of a record row.
const (
	SyncPending    = "pending"
	SyncProcessing = "processing"
	SyncSynced     = "synced"
	SyncError      = "error"
)

var _ store.RecordStore = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append implements store.RecordWriter. The reference is the row ID.
func (r *SQLiteRepository) Append(ctx context.Context, e core.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	rec, err := r.queries.CreateRecord(ctx, CreateRecordParams{
		Date:        e.Date.ISO(),
		Amount:      e.Amount.StringFixed(2),
		Category:    e.Category.String(),
		Description: e.Description,
	})
	if err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}

	slog.InfoContext(ctx, "Record saved to SQLite",
		"id", rec.ID,
		"category", rec.Category,
		"amount", rec.Amount,
		"date", rec.Date)

	return strconv.FormatInt(rec.ID, 10), nil
}

// ListRecords implements store.RecordLister. Amounts come back as decimals
// when the stored text parses, otherwise as the stored string.
func (r *SQLiteRepository) ListRecords(ctx context.Context, category core.Category) ([]core.RawRecord, error) {
	rows, err := r.queries.ListRecordsByCategory(ctx, string(category))
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", category, err)
	}
	out := make([]core.RawRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Raw()
	}
	return out, nil
}

// GetRecord retrieves a single record row by ID
func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (*Record, error) {
	rec, err := r.queries.GetRecord(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, core.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record by id: %w", err)
	}
	return &rec, nil
}

// PendingSyncRecord is the minimal data needed for sync queue messages
type PendingSyncRecord struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// GetPendingSyncRecords returns records that still need to be mirrored
func (r *SQLiteRepository) GetPendingSyncRecords(ctx context.Context, limit int) ([]PendingSyncRecord, error) {
	rows, err := r.queries.GetPendingSyncRecords(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync records: %w", err)
	}

	out := make([]PendingSyncRecord, len(rows))
	for i, row := range rows {
		out[i] = PendingSyncRecord{
			ID:        row.ID,
			Version:   row.Version,
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

// ClaimForSync moves a pending record to processing. It reports false when
// the record is not pending, meaning another caller owns or finished it.
func (r *SQLiteRepository) ClaimForSync(ctx context.Context, id int64) (bool, error) {
	n, err := r.queries.ClaimRecordForSync(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim record %d for sync: %w", id, err)
	}
	return n == 1, nil
}

// ResetStaleProcessing puts records left in processing by a stopped worker
// back to pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) (int64, error) {
	n, err := r.queries.ResetStaleProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset stale processing: %w", err)
	}
	return n, nil
}

// MarkSynced marks a record as successfully mirrored
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	n, err := r.queries.MarkRecordSynced(ctx, id)
	if err != nil {
		return fmt.Errorf("mark record synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark record %d synced: %w", id, core.ErrRecordNotFound)
	}

	slog.InfoContext(ctx, "Record marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a record as having failed to sync
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, reason string) error {
	n, err := r.queries.MarkRecordSyncError(ctx, id, reason)
	if err != nil {
		return fmt.Errorf("mark record sync error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark record %d sync error: %w", id, core.ErrRecordNotFound)
	}

	slog.WarnContext(ctx, "Record marked with sync error", "id", id, "reason", reason)
	return nil
}

// RetryFailedSyncs puts errored records with fewer than maxAttempts
// attempts back in the pending state.
func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context, maxAttempts int) (int64, error) {
	n, err := r.queries.RetryFailedSyncs(ctx, int64(maxAttempts))
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs: %w", err)
	}
	return n, nil
}

// SyncStats counts records per sync status.
func (r *SQLiteRepository) SyncStats(ctx context.Context) (map[string]int64, error) {
	stats, err := r.queries.CountBySyncStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sync status: %w", err)
	}
	return stats, nil
}

// Raw returns the row as a record document.
func (rec Record) Raw() core.RawRecord {
	var amount any = rec.Amount
	if d, err := decimal.NewFromString(rec.Amount); err == nil {
		amount = d
	}
	return core.RawRecord{
		core.KeyDate:        rec.Date,
		core.KeyAmount:      amount,
		core.KeyCategory:    rec.Category,
		core.KeyDescription: rec.Description,
	}
}

// Entry converts the row back into a form entry.
func (rec Record) Entry() (core.Entry, error) {
	e := core.Entry{
		Category:    core.Category(rec.Category),
		Description: rec.Description,
	}
	if rec.Date != "" {
		d, err := core.ParseDate(rec.Date)
		if err != nil {
			return core.Entry{}, fmt.Errorf("record %d date: %w", rec.ID, err)
		}
		e.Date = d
	}
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return core.Entry{}, fmt.Errorf("record %d amount: %w", rec.ID, err)
	}
	e.Amount = amount
	return e, nil
}
