package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the statements against the records table.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx runs the same statements inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Record is a row of the records table.
type Record struct {
	ID           int64
	Date         string
	Amount       string
	Category     string
	Description  string
	Version      int64
	SyncStatus   string
	SyncError    string
	SyncAttempts int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const recordColumns = `id, date, amount, category, description, version, sync_status, sync_error, sync_attempts, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var r Record
	var created, updated timestamp
	err := row.Scan(
		&r.ID,
		&r.Date,
		&r.Amount,
		&r.Category,
		&r.Description,
		&r.Version,
		&r.SyncStatus,
		&r.SyncError,
		&r.SyncAttempts,
		&created,
		&updated,
	)
	r.CreatedAt, r.UpdatedAt = created.Time, updated.Time
	return r, err
}

// timestamp scans DATETIME columns whether the driver hands back a time or
// the stored CURRENT_TIMESTAMP text.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"}

func (t *timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case []byte:
		return t.parse(string(x))
	case string:
		return t.parse(x)
	default:
		return fmt.Errorf("unsupported timestamp value %T", v)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

const createRecord = `INSERT INTO records (date, amount, category, description)
VALUES (?, ?, ?, ?)
RETURNING ` + recordColumns

type CreateRecordParams struct {
	Date        string
	Amount      string
	Category    string
	Description string
}

func (q *Queries) CreateRecord(ctx context.Context, arg CreateRecordParams) (Record, error) {
	row := q.db.QueryRowContext(ctx, createRecord, arg.Date, arg.Amount, arg.Category, arg.Description)
	return scanRecord(row)
}

const getRecord = `SELECT ` + recordColumns + ` FROM records WHERE id = ?`

func (q *Queries) GetRecord(ctx context.Context, id int64) (Record, error) {
	return scanRecord(q.db.QueryRowContext(ctx, getRecord, id))
}

const listRecordsByCategory = `SELECT ` + recordColumns + ` FROM records
WHERE category = ?
ORDER BY id`

func (q *Queries) ListRecordsByCategory(ctx context.Context, category string) ([]Record, error) {
	return q.list(ctx, listRecordsByCategory, category)
}

const getPendingSyncRecords = `SELECT ` + recordColumns + ` FROM records
WHERE sync_status = 'pending'
ORDER BY created_at, id
LIMIT ?`

func (q *Queries) GetPendingSyncRecords(ctx context.Context, limit int64) ([]Record, error) {
	return q.list(ctx, getPendingSyncRecords, limit)
}

const claimRecordForSync = `UPDATE records
SET sync_status = 'processing', updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND sync_status = 'pending'`

func (q *Queries) ClaimRecordForSync(ctx context.Context, id int64) (int64, error) {
	return q.exec(ctx, claimRecordForSync, id)
}

const resetStaleProcessing = `UPDATE records
SET sync_status = 'pending', updated_at = CURRENT_TIMESTAMP
WHERE sync_status = 'processing'`

func (q *Queries) ResetStaleProcessing(ctx context.Context) (int64, error) {
	return q.exec(ctx, resetStaleProcessing)
}

const markRecordSynced = `UPDATE records
SET sync_status = 'synced', sync_error = '', updated_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) MarkRecordSynced(ctx context.Context, id int64) (int64, error) {
	return q.exec(ctx, markRecordSynced, id)
}

const markRecordSyncError = `UPDATE records
SET sync_status = 'error', sync_error = ?, sync_attempts = sync_attempts + 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) MarkRecordSyncError(ctx context.Context, id int64, reason string) (int64, error) {
	return q.exec(ctx, markRecordSyncError, reason, id)
}

const retryFailedSyncs = `UPDATE records
SET sync_status = 'pending', updated_at = CURRENT_TIMESTAMP
WHERE sync_status = 'error' AND sync_attempts < ?`

func (q *Queries) RetryFailedSyncs(ctx context.Context, maxAttempts int64) (int64, error) {
	return q.exec(ctx, retryFailedSyncs, maxAttempts)
}

const countBySyncStatus = `SELECT sync_status, COUNT(*) FROM records GROUP BY sync_status`

func (q *Queries) CountBySyncStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countBySyncStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
