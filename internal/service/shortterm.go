package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/coalesce"
	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/metrics"
	"github.com/Harshitk-cp/feedbackd/internal/store"
	"github.com/Harshitk-cp/feedbackd/internal/strategy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRemediationNotDislike = fmt.Errorf("%w: rating must be dislike", domain.ErrValidation)
	ErrActionContentMissing  = fmt.Errorf("%w: content_id is required", domain.ErrValidation)
	ErrActionInvalid         = fmt.Errorf("%w: action must be accept, reject or retry", domain.ErrValidation)
)

const (
	defaultResponseTimeout = 2 * time.Second
	minResponseTimeout     = 500 * time.Millisecond
	maxResponseTimeout     = 5 * time.Second

	defaultMaxHistoryItems = 200
	minMaxHistoryItems     = 1
	maxMaxHistoryItems     = 1000

	remediationTemperature = 0.7
	remediationMaxTokens   = 500

	// The history read gets a quarter of ResponseTimeout; generation gets the rest.
	historyReadShare    = 4
	historyWriteTimeout = 5 * time.Second
)

type ShortTermOptions struct {
	ResponseTimeout time.Duration
	MaxHistoryItems int
	StorageKey      string
	EventsKey       string
}

func (o ShortTermOptions) withDefaults() ShortTermOptions {
	if o.ResponseTimeout == 0 {
		o.ResponseTimeout = defaultResponseTimeout
	}
	o.ResponseTimeout = clampDuration(o.ResponseTimeout, minResponseTimeout, maxResponseTimeout)

	if o.MaxHistoryItems == 0 {
		o.MaxHistoryItems = defaultMaxHistoryItems
	}
	o.MaxHistoryItems = clampInt(o.MaxHistoryItems, minMaxHistoryItems, maxMaxHistoryItems)

	if o.StorageKey == "" {
		o.StorageKey = DefaultHistoryKey
	}
	if o.EventsKey == "" {
		o.EventsKey = DefaultEventsKey
	}
	return o
}

// ShortTermService answers a dislike with an alternative rendering within
// ResponseTimeout, falling back to a static template when generation fails.
type ShortTermService struct {
	storage   domain.Storage
	uploader  domain.Uploader
	generator domain.Generator
	logger    *zap.Logger
	opts      ShortTermOptions

	inflight  coalesce.Group[*domain.RemediationResult]
	historyMu sync.Mutex
	// wg tracks history writes made after a result is returned.
	wg sync.WaitGroup
}

// NewShortTermService creates the service. uploader and generator may be nil.
func NewShortTermService(storage domain.Storage, uploader domain.Uploader, generator domain.Generator, opts ShortTermOptions, logger *zap.Logger) *ShortTermService {
	return &ShortTermService{
		storage:   storage,
		uploader:  uploader,
		generator: generator,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// Options returns the effective (clamped) configuration.
func (s *ShortTermService) Options() ShortTermOptions {
	return s.opts
}

func validateRemediation(ev *domain.FeedbackEvent) error {
	if ev == nil || ev.ContentID == "" {
		return ErrFeedbackContentIDMissing
	}
	if ev.Rating != domain.RatingDislike {
		return ErrRemediationNotDislike
	}
	if ev.FeedbackType == "" {
		return ErrFeedbackTypeMissing
	}
	return nil
}

// coalesceKey identifies one logical dislike.
func coalesceKey(ev *domain.FeedbackEvent) string {
	if ev.Timestamp.IsZero() {
		return ev.ContentID
	}
	return ev.ContentID + ":" + strconv.FormatInt(ev.Timestamp.UnixMilli(), 10)
}

// HandleFeedback produces an alternative for a disliked piece of content.
// Invalid events yield ShouldRetry=false. Concurrent calls for the same
// content and timestamp share one generation and receive the same result.
func (s *ShortTermService) HandleFeedback(ctx context.Context, ev *domain.FeedbackEvent) *domain.RemediationResult {
	if err := validateRemediation(ev); err != nil {
		s.logger.Debug("remediation skipped", zap.Error(err))
		return &domain.RemediationResult{ShouldRetry: false}
	}

	event := *ev
	key := coalesceKey(&event)

	res, shared, err := s.inflight.Do(ctx, key, func(ctx context.Context) (*domain.RemediationResult, error) {
		return s.remediate(ctx, &event), nil
	})
	if err != nil || res == nil {
		s.logger.Warn("remediation did not complete, serving template",
			zap.String("content_id", event.ContentID),
			zap.Error(err))
		st := strategy.SelectBest(domain.ReasonDefault)
		return &domain.RemediationResult{
			ShouldRetry:       true,
			AlternativeResult: strategy.FallbackText(event.EffectiveContentType(), st.ID, event.ContextString("originalContent")),
			Strategy:          st.ID,
			IsFallback:        true,
		}
	}
	if shared {
		s.logger.Debug("remediation coalesced", zap.String("key", key))
	}
	return res
}

// remediate answers within ResponseTimeout. Storage reads share that budget and
// the history write happens after the result is returned.
func (s *ShortTermService) remediate(ctx context.Context, ev *domain.FeedbackEvent) *domain.RemediationResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.ResponseTimeout)
	defer cancel()

	st := s.selectStrategy(ev, s.boundedHistory(ctx, ev.ContentID))
	original := ev.ContextString("originalContent")
	contentType := ev.EffectiveContentType()

	result := &domain.RemediationResult{
		ShouldRetry:   true,
		AlternativeID: uuid.NewString(),
		Strategy:      st.ID,
	}
	record := domain.RemediationRecord{
		ContentID:     ev.ContentID,
		Strategy:      st.ID,
		AlternativeID: result.AlternativeID,
		Timestamp:     start.UTC(),
	}

	text, err := s.generate(ctx, st.Prompt(strategy.PromptContext{
		OriginalContent: original,
		ContentType:     contentType,
		Comment:         ev.Comment,
	}))
	if err != nil {
		kind := classifyFailure(err)
		metrics.RemediationFailures.WithLabelValues(string(kind)).Inc()
		s.logger.Warn("alternative generation failed, using template",
			zap.String("content_id", ev.ContentID),
			zap.String("strategy", string(st.ID)),
			zap.String("kind", string(kind)),
			zap.Error(err))

		result.AlternativeResult = strategy.FallbackText(contentType, st.ID, original)
		result.IsFallback = true
		record.IsFallback = true
		record.Error = string(kind) + ": " + err.Error()
	} else {
		result.AlternativeResult = text
	}

	latency := time.Since(start)
	record.LatencyMs = latency.Milliseconds()
	metrics.RemediationLatency.WithLabelValues(strconv.FormatBool(result.IsFallback)).Observe(latency.Seconds())

	s.persistHistory(ctx, record)
	return result
}

// generate runs the AI call under ResponseTimeout. The call's context is
// cancelled when the deadline passes, and a generator that ignores it is
// abandoned.
func (s *ShortTermService) generate(ctx context.Context, prompt string) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("%w: no generator configured", domain.ErrAIService)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ResponseTimeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: generator panicked: %v", domain.ErrAIService, r)}
			}
		}()
		gen, err := s.generator.Generate(ctx, prompt, domain.GenerateOptions{
			Temperature: remediationTemperature,
			MaxTokens:   remediationMaxTokens,
		})
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		text := strings.TrimSpace(gen.Output())
		if text == "" {
			ch <- outcome{err: fmt.Errorf("%w: empty generation", domain.ErrAIService)}
			return
		}
		ch <- outcome{text: text}
	}()

	select {
	case out := <-ch:
		return out.text, out.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: generation exceeded %s", domain.ErrTimeout, s.opts.ResponseTimeout)
	}
}

func classifyFailure(err error) domain.FailureKind {
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return domain.FailureTimeout
	}
	return domain.FailureAIFailure
}

// selectStrategy honours an explicit reason on the first attempt, otherwise
// rotates through the catalog so repeated dislikes see different strategies.
func (s *ShortTermService) selectStrategy(ev *domain.FeedbackEvent, records []domain.RemediationRecord) *strategy.Strategy {
	tried := make(map[domain.StrategyID]bool)
	for _, rec := range records {
		tried[rec.Strategy] = true
	}

	reason := domain.DissatisfactionReason(ev.ContextString("reason"))
	if reason != "" && reason != domain.ReasonDefault && len(tried) == 0 {
		return strategy.SelectBest(reason)
	}

	all := strategy.All()
	for _, st := range all {
		if !tried[st.ID] {
			return st
		}
	}
	return all[0]
}

// boundedHistory reads the history under a fraction of ResponseTimeout. A read
// that does not finish in time counts as no history.
func (s *ShortTermService) boundedHistory(ctx context.Context, contentID string) []domain.RemediationRecord {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ResponseTimeout/historyReadShare)
	defer cancel()

	ch := make(chan []domain.RemediationRecord, 1)
	go func() { ch <- s.history(ctx, contentID) }()

	select {
	case records := <-ch:
		return records
	case <-ctx.Done():
		s.logger.Debug("remediation history read timed out", zap.String("content_id", contentID))
		return nil
	}
}

// history returns the remediation records for contentID, oldest first.
// Storage failures read as no history.
func (s *ShortTermService) history(ctx context.Context, contentID string) []domain.RemediationRecord {
	var raws []json.RawMessage
	err := safely(func() error {
		var err error
		raws, err = s.storage.Query(ctx, s.opts.StorageKey, domain.Filter{"content_id": contentID})
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("remediation history unavailable",
				zap.String("content_id", contentID),
				zap.Error(err))
		}
		return nil
	}

	records := make([]domain.RemediationRecord, 0, len(raws))
	for _, raw := range raws {
		var rec domain.RemediationRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// persistHistory appends rec in the background with its own deadline.
func (s *ShortTermService) persistHistory(ctx context.Context, rec domain.RemediationRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
		defer cancel()
		s.appendHistory(ctx, rec)
	}()
}

// Wait blocks until pending history writes have finished.
func (s *ShortTermService) Wait() {
	s.wg.Wait()
}

func (s *ShortTermService) appendHistory(ctx context.Context, rec domain.RemediationRecord) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	err := safely(func() error {
		return store.AppendCapped(ctx, s.storage, s.opts.StorageKey, s.opts.MaxHistoryItems, rec)
	})
	if err != nil {
		s.logger.Warn("failed to persist remediation record",
			zap.String("content_id", rec.ContentID),
			zap.Error(err))
	}
}

// LogUserAction records the user's reaction to the latest alternative shown
// for contentID. The event is uploaded when possible, otherwise appended to
// EventsKey. A non-nil error means the action was not recorded anywhere.
func (s *ShortTermService) LogUserAction(ctx context.Context, contentID string, action domain.UserAction) error {
	if contentID == "" {
		return ErrActionContentMissing
	}
	if !domain.ValidUserAction(string(action)) {
		return ErrActionInvalid
	}

	now := time.Now().UTC()
	ev := domain.FeedbackEvent{
		ContentID:    contentID,
		FeedbackType: domain.FeedbackTypeThumbDown,
		Rating:       domain.RatingDislike,
		Timestamp:    now,
		UserAction:   action,
		ActionTime:   &now,
	}

	if records := s.history(ctx, contentID); len(records) > 0 {
		last := records[len(records)-1]
		ev.Strategy = last.Strategy
		ev.AlternativeID = last.AlternativeID
		feedbackTime := last.Timestamp
		ev.FeedbackTime = &feedbackTime
	}

	if s.uploader != nil {
		err := safely(func() error { return s.uploader.Upload(ctx, []any{ev}) })
		if err == nil {
			return nil
		}
		s.logger.Warn("user action upload failed, falling back to storage",
			zap.String("content_id", contentID),
			zap.Error(err))
	}

	err := safely(func() error {
		return store.AppendCapped(ctx, s.storage, s.opts.EventsKey, defaultMaxStoredEvents, ev)
	})
	if err != nil {
		s.logger.Error("failed to record user action",
			zap.String("content_id", contentID),
			zap.String("action", string(action)),
			zap.Error(err))
		return fmt.Errorf("%w: record user action: %v", domain.ErrTransientIO, err)
	}
	return nil
}
