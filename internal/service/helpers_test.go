package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/store"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestStorage(t *testing.T) *store.ResilientStorage {
	t.Helper()
	return store.NewResilientStorage(store.NewMemoryBackend(0), zap.NewNop())
}

var errBoom = errors.New("boom")

// mockUploader implements domain.Uploader for testing.
type mockUploader struct {
	mu      sync.Mutex
	batches [][]any
	err     error
	panic   bool

	// When set, Upload signals started and then waits for release.
	started chan struct{}
	release chan struct{}
}

func newMockUploader() *mockUploader {
	return &mockUploader{}
}

func (m *mockUploader) Upload(ctx context.Context, events []any) error {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panic {
		panic("uploader exploded")
	}
	m.batches = append(m.batches, events)
	return m.err
}

func (m *mockUploader) Batches() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]any, len(m.batches))
	copy(out, m.batches)
	return out
}

// brokenStorage implements domain.Storage with every call failing.
type brokenStorage struct {
	panic bool
}

func (b *brokenStorage) fail() error {
	if b.panic {
		panic("storage exploded")
	}
	return errBoom
}

func (b *brokenStorage) Save(ctx context.Context, key string, value any) error { return b.fail() }
func (b *brokenStorage) Load(ctx context.Context, key string, dst any) error   { return b.fail() }
func (b *brokenStorage) Remove(ctx context.Context, key string) error          { return b.fail() }
func (b *brokenStorage) Count(ctx context.Context, key string) (int, error)    { return 0, b.fail() }
func (b *brokenStorage) Query(ctx context.Context, key string, filter domain.Filter) ([]json.RawMessage, error) {
	return nil, b.fail()
}

// slowQueryStorage delegates to the test storage but blocks Query until ctx ends.
type slowQueryStorage struct {
	*store.ResilientStorage
	queries atomic.Int32
}

func (s *slowQueryStorage) Query(ctx context.Context, key string, filter domain.Filter) ([]json.RawMessage, error) {
	s.queries.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

// slowSaveStorage delegates to an inner storage but sleeps before every Save.
type slowSaveStorage struct {
	domain.Storage
	delay time.Duration
}

func (s *slowSaveStorage) Save(ctx context.Context, key string, value any) error {
	time.Sleep(s.delay)
	return s.Storage.Save(ctx, key, value)
}

// countingStorage records every filtered count made against the test storage.
type countingStorage struct {
	*store.ResilientStorage
	counts atomic.Int32
}

func (s *countingStorage) CountMatching(ctx context.Context, key string, filter domain.Filter) (int, error) {
	s.counts.Add(1)
	return s.ResilientStorage.CountMatching(ctx, key, filter)
}
