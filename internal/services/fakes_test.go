package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bitesbytes/internal/core"
	"bitesbytes/internal/store/memory"
)

var errUnavailable = errors.New("backend unavailable")

// countingStore wraps the memory store and counts list calls.
type countingStore struct {
	*memory.Store
	lists   atomic.Int32
	failErr error
	closed  bool
}

func newCountingStore(seed ...core.RawRecord) *countingStore {
	return &countingStore{Store: memory.New(seed...)}
}

func (s *countingStore) ListRecords(ctx context.Context, category core.Category) ([]core.RawRecord, error) {
	s.lists.Add(1)
	if s.failErr != nil {
		return nil, s.failErr
	}
	return s.Store.ListRecords(ctx, category)
}

func (s *countingStore) Close() error {
	s.closed = true
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []int64
	err       error
	closeErr  error
}

func (p *fakePublisher) PublishRecordSync(_ context.Context, id, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, id)
	return nil
}

func (p *fakePublisher) Close() error { return p.closeErr }

// flakyMirror fails every Append while err is set.
type flakyMirror struct {
	*memory.Store
	err error
}

func (m *flakyMirror) Append(ctx context.Context, e core.Entry) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.Store.Append(ctx, e)
}

// slowMirror delays every Append so concurrent syncs overlap.
type slowMirror struct {
	*memory.Store
	delay time.Duration
}

func (m *slowMirror) Append(ctx context.Context, e core.Entry) (string, error) {
	time.Sleep(m.delay)
	return m.Store.Append(ctx, e)
}
