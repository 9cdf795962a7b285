package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitesbytes/internal/core"
	"bitesbytes/internal/storage"
)

func newSQLite(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func income(amount, desc string) core.Entry {
	return core.Entry{
		Date:        core.NewDate(2024, 1, 10),
		Amount:      decimal.RequireFromString(amount),
		Category:    core.Income,
		Description: desc,
	}
}

func TestRecordService_CreateRecordPublishes(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewRecordService(newSQLite(t), pub)

	ref, err := svc.CreateRecord(context.Background(), income("600", "Wheat - 6pc"))
	require.NoError(t, err)
	assert.Equal(t, "1", ref)
	assert.Equal(t, []int64{1}, pub.published)

	batch, err := svc.ListRecords(context.Background(), core.Income)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestRecordService_PublishFailureKeepsRecord(t *testing.T) {
	pub := &fakePublisher{err: errUnavailable}
	repo := newSQLite(t)
	svc := NewRecordService(repo, pub)

	ref, err := svc.Append(context.Background(), income("50", "mix 1pc"))
	require.NoError(t, err)
	assert.Equal(t, "1", ref)

	pending, err := repo.GetPendingSyncRecords(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "unpublished record stays pending for the poller")
}

func TestRecordService_WithoutPublisher(t *testing.T) {
	svc := NewRecordService(newSQLite(t), nil)
	_, err := svc.CreateRecord(context.Background(), income("10", ""))
	assert.NoError(t, err)
}

func TestRecordService_InvalidEntry(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewRecordService(newSQLite(t), pub)

	_, err := svc.CreateRecord(context.Background(), income("0", "free sample"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Empty(t, pub.published)
}

func TestRecordService_Close(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		svc := &RecordService{}
		assert.NoError(t, svc.Close())
	})

	t.Run("closes both", func(t *testing.T) {
		repo := newCountingStore()
		svc := NewRecordService(repo, &fakePublisher{})
		require.NoError(t, svc.Close())
		assert.True(t, repo.closed)
	})

	t.Run("joins errors", func(t *testing.T) {
		closeErr := errors.New("channel already closed")
		svc := NewRecordService(newCountingStore(), &fakePublisher{closeErr: closeErr})
		err := svc.Close()
		assert.ErrorIs(t, err, closeErr)
	})
}
