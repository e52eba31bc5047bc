package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/metrics"
	"github.com/Harshitk-cp/feedbackd/internal/store"
	"go.uber.org/zap"
)

var (
	ErrFeedbackContentIDMissing = fmt.Errorf("%w: content_id is required", domain.ErrValidation)
	ErrFeedbackTypeMissing      = fmt.Errorf("%w: feedback_type is required", domain.ErrValidation)
	ErrFeedbackInvalidType      = fmt.Errorf("%w: invalid feedback_type", domain.ErrValidation)
	ErrFeedbackInvalidContent   = fmt.Errorf("%w: invalid content_type", domain.ErrValidation)
	ErrFeedbackInvalidRating    = fmt.Errorf("%w: invalid rating", domain.ErrValidation)
	ErrFeedbackInvalidAction    = fmt.Errorf("%w: invalid user_action", domain.ErrValidation)
	ErrFeedbackInvalidStrategy  = fmt.Errorf("%w: invalid strategy", domain.ErrValidation)
	ErrFeedbackServiceClosed    = errors.New("feedback service is closed")
)

const (
	defaultMaxBufferSize = 10
	minMaxBufferSize     = 1
	maxMaxBufferSize     = 100

	defaultFlushInterval = 30 * time.Second
	minFlushInterval     = 5 * time.Second
	maxFlushInterval     = 300 * time.Second

	flushTimeout = 30 * time.Second
)

// Flush sinks, also used as metric labels.
const (
	sinkUploader = "uploader"
	sinkStorage  = "storage"
	sinkDropped  = "dropped"
)

type FeedbackOptions struct {
	MaxBufferSize   int
	FlushInterval   time.Duration
	StorageKey      string
	MaxStoredEvents int
}

func (o FeedbackOptions) withDefaults() FeedbackOptions {
	if o.MaxBufferSize == 0 {
		o.MaxBufferSize = defaultMaxBufferSize
	}
	o.MaxBufferSize = clampInt(o.MaxBufferSize, minMaxBufferSize, maxMaxBufferSize)

	if o.FlushInterval == 0 {
		o.FlushInterval = defaultFlushInterval
	}
	o.FlushInterval = clampDuration(o.FlushInterval, minFlushInterval, maxFlushInterval)

	if o.StorageKey == "" {
		o.StorageKey = DefaultEventsKey
	}
	if o.MaxStoredEvents <= 0 {
		o.MaxStoredEvents = defaultMaxStoredEvents
	}
	return o
}

// FeedbackService buffers client feedback and flushes it to the uploader,
// falling back to storage. A batch that reaches neither is dropped.
type FeedbackService struct {
	storage  domain.Storage
	uploader domain.Uploader
	logger   *zap.Logger
	opts     FeedbackOptions

	mu       sync.Mutex
	buffer   []domain.FeedbackEvent
	closed   bool
	flushing atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFeedbackService creates the buffer. uploader may be nil, in which case
// every flush goes straight to storage.
func NewFeedbackService(storage domain.Storage, uploader domain.Uploader, opts FeedbackOptions, logger *zap.Logger) *FeedbackService {
	return &FeedbackService{
		storage:  storage,
		uploader: uploader,
		logger:   logger,
		opts:     opts.withDefaults(),
		stopCh:   make(chan struct{}),
	}
}

// Options returns the effective (clamped) configuration.
func (s *FeedbackService) Options() FeedbackOptions {
	return s.opts
}

// ValidateEvent checks required fields and enum membership.
func ValidateEvent(ev *domain.FeedbackEvent) error {
	if ev == nil || ev.ContentID == "" {
		return ErrFeedbackContentIDMissing
	}
	if ev.FeedbackType == "" {
		return ErrFeedbackTypeMissing
	}
	if !domain.ValidFeedbackType(string(ev.FeedbackType)) {
		return ErrFeedbackInvalidType
	}
	if ev.ContentType != "" && !domain.ValidContentType(string(ev.ContentType)) {
		return ErrFeedbackInvalidContent
	}
	if ev.Rating != "" && ev.Rating != domain.RatingLike && ev.Rating != domain.RatingDislike {
		return ErrFeedbackInvalidRating
	}
	if ev.UserAction != "" && !domain.ValidUserAction(string(ev.UserAction)) {
		return ErrFeedbackInvalidAction
	}
	if ev.Strategy != "" && !domain.ValidStrategyID(string(ev.Strategy)) {
		return ErrFeedbackInvalidStrategy
	}
	return nil
}

// Submit validates ev and buffers a copy of it. Reaching MaxBufferSize
// triggers an immediate background flush.
func (s *FeedbackService) Submit(ctx context.Context, ev *domain.FeedbackEvent) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}

	buffered := ev.Clone()
	now := time.Now().UTC()
	buffered.IngestedAt = &now
	if buffered.Timestamp.IsZero() {
		buffered.Timestamp = now
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrFeedbackServiceClosed
	}
	s.buffer = append(s.buffer, buffered)
	full := len(s.buffer) >= s.opts.MaxBufferSize
	// Registered under the lock so Destroy cannot miss it.
	if full {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if full {
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			s.Flush(ctx)
		}()
	}
	return nil
}

// Buffered returns the number of events waiting to be flushed.
func (s *FeedbackService) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Flush ships the current buffer. At most one flush runs at a time; a call
// made while another is in flight returns immediately. The buffer is
// snapshotted and cleared before any I/O, so events submitted meanwhile land
// in the next batch. Returns the number of events taken from the buffer.
func (s *FeedbackService) Flush(ctx context.Context) int {
	if !s.flushing.CompareAndSwap(false, true) {
		s.logger.Debug("flush already in progress")
		return 0
	}
	defer s.flushing.Store(false)

	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	sink := s.deliver(ctx, batch)
	metrics.FlushedEvents.WithLabelValues(sink).Add(float64(len(batch)))
	s.logger.Debug("feedback flushed", zap.Int("events", len(batch)), zap.String("sink", sink))
	return len(batch)
}

func (s *FeedbackService) deliver(ctx context.Context, batch []domain.FeedbackEvent) string {
	if s.uploader != nil {
		err := safely(func() error { return s.uploader.Upload(ctx, toAny(batch)) })
		if err == nil {
			return sinkUploader
		}
		s.logger.Warn("feedback upload failed, falling back to storage",
			zap.Int("events", len(batch)),
			zap.Error(err))
	}

	err := safely(func() error {
		return store.AppendCapped(ctx, s.storage, s.opts.StorageKey, s.opts.MaxStoredEvents, batch...)
	})
	if err == nil {
		return sinkStorage
	}

	s.logger.Error("feedback batch dropped",
		zap.Int("events", len(batch)),
		zap.String("key", s.opts.StorageKey),
		zap.Error(err))
	return sinkDropped
}

// Start runs the periodic flush in a background goroutine.
func (s *FeedbackService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.FlushInterval)
		defer ticker.Stop()

		s.logger.Info("feedback flusher started", zap.Duration("interval", s.opts.FlushInterval))

		for {
			select {
			case <-ticker.C:
				if s.Buffered() == 0 {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				s.Flush(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("feedback flusher stopped")
				return
			}
		}
	}()
}

// Destroy stops the periodic flush, waits for background flushes and makes a
// best-effort final flush. Later submissions are rejected.
func (s *FeedbackService) Destroy(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	if n := s.Flush(ctx); n > 0 {
		s.logger.Info("final feedback flush", zap.Int("events", n))
	}
}
