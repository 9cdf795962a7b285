package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func entry(date core.Date, amount string, category core.Category, desc string) core.Entry {
	return core.Entry{Date: date, Amount: decimal.RequireFromString(amount), Category: category, Description: desc}
}

func TestMigrationsApplied(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "schema.db")
	if err := RunMigrations(dbPath); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	// Second run is a no-op.
	if err := RunMigrations(dbPath); err != nil {
		t.Fatalf("RunMigrations twice: %v", err)
	}
	version, dirty, err := SchemaVersion(dbPath)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("schema version = %d dirty=%v, want 3 clean", version, dirty)
	}
}

func TestRepository_AppendAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ref, err := repo.Append(ctx, entry(core.NewDate(2024, 1, 5), "600", core.Income, "Wheat - 6pc"))
	if err != nil {
		t.Fatalf("append income: %v", err)
	}
	if ref != "1" {
		t.Errorf("ref = %q, want 1", ref)
	}
	if _, err := repo.Append(ctx, entry(core.Date{}, "80.5", core.Expense, "box")); err != nil {
		t.Fatalf("append expense: %v", err)
	}

	income, err := repo.ListRecords(ctx, core.Income)
	if err != nil || len(income) != 1 {
		t.Fatalf("list income: %v err=%v", income, err)
	}
	if income[0][core.KeyDate] != "2024-01-05" {
		t.Errorf("date = %v", income[0][core.KeyDate])
	}
	amount, ok := income[0][core.KeyAmount].(decimal.Decimal)
	if !ok || !amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("amount = %#v, want decimal 600", income[0][core.KeyAmount])
	}

	expense, err := repo.ListRecords(ctx, core.Expense)
	if err != nil || len(expense) != 1 {
		t.Fatalf("list expense: %v err=%v", expense, err)
	}
	if expense[0][core.KeyDate] != "" {
		t.Errorf("absent date should be empty, got %v", expense[0][core.KeyDate])
	}

	none, err := repo.ListRecords(ctx, "income")
	if err != nil || len(none) != 0 {
		t.Errorf("category match must be exact, got %v", none)
	}
}

func TestRepository_AppendValidates(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Append(context.Background(), entry(core.Date{}, "-1", core.Income, ""))
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRepository_SyncLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, desc := range []string{"a", "b", "c"} {
		if _, err := repo.Append(ctx, entry(core.NewDate(2024, 3, 1), "10", core.Expense, desc)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	pending, err := repo.GetPendingSyncRecords(ctx, 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != 1 || pending[0].Version != 1 {
		t.Fatalf("unexpected pending batch: %+v", pending)
	}

	if err := repo.MarkSynced(ctx, 1); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, 2, "quota exceeded"); err != nil {
		t.Fatalf("MarkSyncError: %v", err)
	}

	pending, _ = repo.GetPendingSyncRecords(ctx, 10)
	if len(pending) != 1 || pending[0].ID != 3 {
		t.Fatalf("expected only record 3 pending, got %+v", pending)
	}

	rec, err := repo.GetRecord(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.SyncStatus != SyncError || rec.SyncError != "quota exceeded" || rec.SyncAttempts != 1 {
		t.Errorf("unexpected record state: %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created_at should be populated")
	}

	n, err := repo.RetryFailedSyncs(ctx, 3)
	if err != nil || n != 1 {
		t.Fatalf("RetryFailedSyncs = %d, %v", n, err)
	}

	stats, err := repo.SyncStats(ctx)
	if err != nil {
		t.Fatalf("SyncStats: %v", err)
	}
	if stats[SyncSynced] != 1 || stats[SyncPending] != 2 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestRepository_ClaimForSync(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Append(ctx, entry(core.NewDate(2024, 3, 1), "10", core.Expense, "sugar")); err != nil {
		t.Fatalf("append: %v", err)
	}

	claimed, err := repo.ClaimForSync(ctx, 1)
	if err != nil || !claimed {
		t.Fatalf("first claim = %v, %v; want true", claimed, err)
	}
	claimed, err = repo.ClaimForSync(ctx, 1)
	if err != nil || claimed {
		t.Fatalf("second claim = %v, %v; want false", claimed, err)
	}

	pending, _ := repo.GetPendingSyncRecords(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("claimed record should not be pending, got %+v", pending)
	}

	n, err := repo.ResetStaleProcessing(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetStaleProcessing = %d, %v; want 1", n, err)
	}
	rec, err := repo.GetRecord(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.SyncStatus != SyncPending {
		t.Errorf("status after reset = %q, want pending", rec.SyncStatus)
	}

	if err := repo.MarkSynced(ctx, 1); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if claimed, _ := repo.ClaimForSync(ctx, 1); claimed {
		t.Error("synced record must not be claimed")
	}
}

func TestRepository_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetRecord(ctx, 42); !errors.Is(err, core.ErrRecordNotFound) {
		t.Errorf("GetRecord: expected ErrRecordNotFound, got %v", err)
	}
	if err := repo.MarkSynced(ctx, 42); !errors.Is(err, core.ErrRecordNotFound) {
		t.Errorf("MarkSynced: expected ErrRecordNotFound, got %v", err)
	}
}

func TestRecordEntry(t *testing.T) {
	rec := Record{ID: 7, Date: "2024-02-29", Amount: "12.50", Category: "Income", Description: "mix 2pc"}
	e, err := rec.Entry()
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if e.Date.ISO() != "2024-02-29" || !e.Amount.Equal(decimal.RequireFromString("12.5")) || e.Category != core.Income {
		t.Errorf("unexpected entry: %+v", e)
	}

	undated, err := Record{Amount: "1", Category: "Expense"}.Entry()
	if err != nil || !undated.Date.IsEmpty() {
		t.Errorf("undated record: %+v err=%v", undated, err)
	}

	if _, err := (Record{Date: "29/02/2024", Amount: "1"}).Entry(); err == nil {
		t.Error("expected date error")
	}
	if _, err := (Record{Amount: "abc"}).Entry(); err == nil {
		t.Error("expected amount error")
	}
}
