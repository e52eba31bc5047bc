package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultAggregationTimeout = 30 * time.Second
	minAggregationTimeout     = 10 * time.Second
	maxAggregationTimeout     = 60 * time.Second

	defaultMinFeedbackCount = 50
	minMinFeedbackCount     = 10

	defaultBatchSize = 1000
	minBatchSize     = 100
	maxBatchSize     = 10000

	defaultSuggestionTimeout     = 2 * time.Second
	defaultSuggestionConcurrency = 4

	defaultAggregationWindow = 7 * 24 * time.Hour

	// minEngagementGap filters out accidental taps.
	minEngagementGap = 2 * time.Second
)

type AggregationOptions struct {
	Timeout               time.Duration
	MinFeedbackCount      int
	BatchSize             int
	StorageKey            string
	EventsKey             string
	Thresholds            domain.PatternThresholds
	SuggestionTimeout     time.Duration
	SuggestionConcurrency int
	Window                time.Duration
}

func (o AggregationOptions) withDefaults() AggregationOptions {
	if o.Timeout == 0 {
		o.Timeout = defaultAggregationTimeout
	}
	o.Timeout = clampDuration(o.Timeout, minAggregationTimeout, maxAggregationTimeout)

	if o.MinFeedbackCount == 0 {
		o.MinFeedbackCount = defaultMinFeedbackCount
	}
	if o.MinFeedbackCount < minMinFeedbackCount {
		o.MinFeedbackCount = minMinFeedbackCount
	}

	if o.BatchSize == 0 {
		o.BatchSize = defaultBatchSize
	}
	o.BatchSize = clampInt(o.BatchSize, minBatchSize, maxBatchSize)

	if o.StorageKey == "" {
		o.StorageKey = DefaultAggregationKey
	}
	if o.EventsKey == "" {
		o.EventsKey = DefaultEventsKey
	}
	o.Thresholds = o.Thresholds.WithDefaults()
	if o.SuggestionTimeout <= 0 {
		o.SuggestionTimeout = defaultSuggestionTimeout
	}
	if o.SuggestionConcurrency <= 0 {
		o.SuggestionConcurrency = defaultSuggestionConcurrency
	}
	if o.Window <= 0 {
		o.Window = defaultAggregationWindow
	}
	return o
}

// AggregationService turns a window of dislike events into optimization
// suggestions. Every call returns a populated result; an empty outcome carries
// a Reason.
type AggregationService struct {
	storage   domain.Storage
	uploader  domain.Uploader
	generator domain.Generator
	logger    *zap.Logger
	opts      AggregationOptions

	// partial is the last successful query result, served when a later query
	// does not finish in time.
	mu      sync.Mutex
	partial []domain.FeedbackEvent

	now func() time.Time
}

// NewAggregationService creates the service. uploader and generator may be nil.
func NewAggregationService(storage domain.Storage, uploader domain.Uploader, generator domain.Generator, opts AggregationOptions, logger *zap.Logger) *AggregationService {
	return &AggregationService{
		storage:   storage,
		uploader:  uploader,
		generator: generator,
		logger:    logger,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Options returns the effective (clamped) configuration.
func (s *AggregationService) Options() AggregationOptions {
	return s.opts
}

// Aggregate runs the pipeline: count, query, dedup, quality filter, pattern
// detection, suggestion generation and persistence.
func (s *AggregationService) Aggregate(ctx context.Context) (result *domain.AggregationResult) {
	start := time.Now()
	result = &domain.AggregationResult{}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("aggregation panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = &domain.AggregationResult{}
			s.finish(start, result, domain.ReasonError)
		}
	}()

	count, err := s.countDislikes(ctx)
	if err != nil {
		s.logger.Error("aggregation count failed", zap.Error(err))
		return s.finish(start, result, domain.ReasonError)
	}
	if count < s.opts.MinFeedbackCount {
		s.logger.Info("not enough feedback to aggregate",
			zap.Int("count", count),
			zap.Int("min", s.opts.MinFeedbackCount))
		return s.finish(start, result, domain.ReasonInsufficientData)
	}

	events := s.query(ctx)
	result.Metadata.RawCount = len(events)
	if len(events) == 0 {
		return s.finish(start, result, domain.ReasonNoData)
	}

	quality := filterQuality(dedupeByContent(events))
	result.Metadata.QualityCount = len(quality)
	if len(quality) == 0 {
		return s.finish(start, result, domain.ReasonNoQualityData)
	}

	patterns := detectPatterns(quality, s.opts.Thresholds)
	result.Patterns = patterns
	result.Metadata.PatternCount = len(patterns)
	if len(patterns) == 0 {
		return s.finish(start, result, domain.ReasonNoPatterns)
	}

	result.Suggestions = s.suggest(ctx, patterns)
	result.Metadata.SuggestionCount = len(result.Suggestions)

	s.finish(start, result, "")
	s.persist(ctx, result)
	return result
}

func (s *AggregationService) finish(start time.Time, result *domain.AggregationResult, reason domain.AggregationReason) *domain.AggregationResult {
	if result.Suggestions == nil || reason != "" {
		result.Suggestions = []domain.Suggestion{}
	}
	if result.Patterns == nil || reason == domain.ReasonError {
		result.Patterns = []domain.Pattern{}
	}
	result.Reason = reason
	result.GeneratedAt = s.now().UTC()

	elapsed := time.Since(start)
	result.Metadata.DurationMs = elapsed.Milliseconds()

	label := string(reason)
	if label == "" {
		label = "ok"
	}
	metrics.AggregationRuns.WithLabelValues(label).Inc()
	metrics.AggregationDuration.Observe(elapsed.Seconds())

	s.logger.Info("aggregation finished",
		zap.String("reason", label),
		zap.Int("raw", result.Metadata.RawCount),
		zap.Int("quality", result.Metadata.QualityCount),
		zap.Int("patterns", result.Metadata.PatternCount),
		zap.Int("suggestions", result.Metadata.SuggestionCount),
		zap.Duration("duration", elapsed))
	return result
}

type queryOutcome struct {
	raws []json.RawMessage
	err  error
}

// query fetches dislike events from the window, newest first and capped at
// BatchSize. When the query fails or exceeds Timeout, the last successful
// result is reused.
// countDislikes counts stored dislike events without decoding them when the
// storage supports filtered counts.
func (s *AggregationService) countDislikes(ctx context.Context) (int, error) {
	filter := domain.Filter{"rating": string(domain.RatingDislike)}

	var count int
	err := safely(func() error {
		if fc, ok := s.storage.(domain.FilterCounter); ok {
			var err error
			count, err = fc.CountMatching(ctx, s.opts.EventsKey, filter)
			return err
		}
		raws, err := s.storage.Query(ctx, s.opts.EventsKey, filter)
		count = len(raws)
		return err
	})
	return count, err
}

func (s *AggregationService) query(ctx context.Context) []domain.FeedbackEvent {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cutoff := s.now().Add(-s.opts.Window)
	filter := domain.Filter{
		"rating":    string(domain.RatingDislike),
		"timestamp": domain.Predicate(func(v any) bool { return notBefore(v, cutoff) }),
	}

	ch := make(chan queryOutcome, 1)
	go func() {
		var out queryOutcome
		out.err = safely(func() error {
			var err error
			out.raws, err = s.storage.Query(ctx, s.opts.EventsKey, filter)
			return err
		})
		ch <- out
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			s.logger.Warn("feedback query failed, using cached result", zap.Error(out.err))
			return s.cached()
		}
		events := decodeEvents(out.raws, s.opts.BatchSize)
		s.mu.Lock()
		s.partial = events
		s.mu.Unlock()
		return events
	case <-ctx.Done():
		s.logger.Warn("feedback query timed out, using cached result", zap.Duration("timeout", s.opts.Timeout))
		return s.cached()
	}
}

func (s *AggregationService) cached() []domain.FeedbackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FeedbackEvent, len(s.partial))
	copy(out, s.partial)
	return out
}

func notBefore(v any, cutoff time.Time) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return false
	}
	return !t.Before(cutoff)
}

func decodeEvents(raws []json.RawMessage, limit int) []domain.FeedbackEvent {
	events := make([]domain.FeedbackEvent, 0, len(raws))
	for _, raw := range raws {
		var ev domain.FeedbackEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}

// dedupeByContent keeps, per content id, the event with the latest timestamp.
// Output follows first-seen order.
func dedupeByContent(events []domain.FeedbackEvent) []domain.FeedbackEvent {
	index := make(map[string]int, len(events))
	out := make([]domain.FeedbackEvent, 0, len(events))
	for _, ev := range events {
		i, seen := index[ev.ContentID]
		if !seen {
			index[ev.ContentID] = len(out)
			out = append(out, ev)
			continue
		}
		if ev.Timestamp.After(out[i].Timestamp) {
			out[i] = ev
		}
	}
	return out
}

// filterQuality keeps complete events that show real engagement.
func filterQuality(events []domain.FeedbackEvent) []domain.FeedbackEvent {
	out := make([]domain.FeedbackEvent, 0, len(events))
	for _, ev := range events {
		if ev.ContentID == "" || ev.Rating == "" || ev.Timestamp.IsZero() {
			continue
		}
		if ev.AlternativeID == "" && ev.UserAction == "" {
			continue
		}
		if ev.ActionTime != nil && ev.FeedbackTime != nil && ev.ActionTime.Sub(*ev.FeedbackTime) < minEngagementGap {
			continue
		}
		out = append(out, ev)
	}
	return out
}

type strategyStats struct {
	count    int
	rejected int
	retried  int
}

// detectPatterns groups events by strategy and flags high reject and retry
// rates. Events without a strategy are ignored.
func detectPatterns(events []domain.FeedbackEvent, th domain.PatternThresholds) []domain.Pattern {
	stats := make(map[domain.StrategyID]*strategyStats)
	var order []domain.StrategyID
	for _, ev := range events {
		if ev.Strategy == "" {
			continue
		}
		st, ok := stats[ev.Strategy]
		if !ok {
			st = &strategyStats{}
			stats[ev.Strategy] = st
			order = append(order, ev.Strategy)
		}
		st.count++
		switch ev.UserAction {
		case domain.UserActionReject:
			st.rejected++
		case domain.UserActionRetry:
			st.retried++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	patterns := []domain.Pattern{}
	for _, id := range order {
		st := stats[id]
		rejectRate := float64(st.rejected) / float64(st.count)
		retryRate := float64(st.retried) / float64(st.count)

		if p, ok := rejectPattern(id, rejectRate, st.count, th); ok {
			patterns = append(patterns, p)
		}
		if p, ok := retryPattern(id, retryRate, st.count, th); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func rejectPattern(id domain.StrategyID, rate float64, n int, th domain.PatternThresholds) (domain.Pattern, bool) {
	if rate <= th.RejectRate || n <= th.MinSampleSize {
		return domain.Pattern{}, false
	}
	severity := domain.SeverityMedium
	if rate > th.HighRejectRate {
		severity = domain.SeverityHigh
	}
	return domain.Pattern{
		Type:       domain.PatternHighRejectRate,
		Strategy:   id,
		Rate:       rate,
		SampleSize: n,
		Severity:   severity,
	}, true
}

func retryPattern(id domain.StrategyID, rate float64, n int, th domain.PatternThresholds) (domain.Pattern, bool) {
	if rate <= th.RetryRate || n <= th.MinSampleSize {
		return domain.Pattern{}, false
	}
	return domain.Pattern{
		Type:       domain.PatternHighRetryRate,
		Strategy:   id,
		Rate:       rate,
		SampleSize: n,
		Severity:   domain.SeverityMedium,
	}, true
}

// persist saves the result and mirrors it to the collector. Failures are
// logged only.
func (s *AggregationService) persist(ctx context.Context, result *domain.AggregationResult) {
	if err := safely(func() error { return s.storage.Save(ctx, s.opts.StorageKey, result) }); err != nil {
		s.logger.Warn("failed to save aggregation result", zap.Error(err))
	}
	if s.uploader == nil {
		return
	}
	if err := safely(func() error { return s.uploader.Upload(ctx, []any{result}) }); err != nil {
		s.logger.Warn("failed to upload aggregation result", zap.Error(err))
	}
}

// Latest returns the most recently persisted result.
func (s *AggregationService) Latest(ctx context.Context) (*domain.AggregationResult, error) {
	var result domain.AggregationResult
	err := safely(func() error { return s.storage.Load(ctx, s.opts.StorageKey, &result) })
	if err != nil {
		return nil, fmt.Errorf("load aggregation result: %w", err)
	}
	return &result, nil
}
