package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"bitesbytes/internal/core"
	"bitesbytes/internal/log"
	"bitesbytes/internal/store"
)

// Repository is the local store the record service writes through.
type Repository interface {
	store.RecordStore
	Close() error
}

// SyncPublisher announces stored records to the mirror worker.
type SyncPublisher interface {
	PublishRecordSync(ctx context.Context, id, version int64) error
	Close() error
}

// RecordService orchestrates record writes across SQLite and AMQP
type RecordService struct {
	storage   Repository
	publisher SyncPublisher
}

func NewRecordService(storage Repository, publisher SyncPublisher) *RecordService {
	return &RecordService{
		storage:   storage,
		publisher: publisher,
	}
}

// CreateRecord saves a record locally and publishes a sync message. A failed
// publish is logged; the pending row is picked up by the worker's poll.
func (s *RecordService) CreateRecord(ctx context.Context, e core.Entry) (string, error) {
	ref, err := s.storage.Append(ctx, e)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to parse record ID", log.FieldRecordRef, ref, "error", err)
		return ref, nil
	}

	// New rows start at version 1.
	if err := s.publishSyncMessage(ctx, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldComponent, log.ComponentAMQP,
			"id", id, "error", err)
	}

	return ref, nil
}

// Append implements store.RecordWriter.
func (s *RecordService) Append(ctx context.Context, e core.Entry) (string, error) {
	return s.CreateRecord(ctx, e)
}

// ListRecords implements store.RecordLister.
func (s *RecordService) ListRecords(ctx context.Context, category core.Category) ([]core.RawRecord, error) {
	return s.storage.ListRecords(ctx, category)
}

func (s *RecordService) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "id", id)
		return nil
	}

	return s.publisher.PublishRecordSync(ctx, id, version)
}

// Close closes both storage and AMQP connections
func (s *RecordService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close record service: %w", err)
	}

	return nil
}
