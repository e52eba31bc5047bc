package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engagedEvent is a dislike that passes the quality filter.
func engagedEvent(id string, st domain.StrategyID, action domain.UserAction, ts time.Time) domain.FeedbackEvent {
	feedbackTime := ts.Add(-10 * time.Second)
	return domain.FeedbackEvent{
		ContentID:     id,
		ContentType:   domain.ContentTypeWriting,
		FeedbackType:  domain.FeedbackTypeThumbDown,
		Rating:        domain.RatingDislike,
		Timestamp:     ts,
		Strategy:      st,
		UserAction:    action,
		AlternativeID: "alt-" + id,
		FeedbackTime:  &feedbackTime,
		ActionTime:    &ts,
	}
}

func seedEvents(t *testing.T, storage domain.Storage, events []domain.FeedbackEvent) {
	t.Helper()
	require.NoError(t, storage.Save(context.Background(), DefaultEventsKey, events))
}

// rejectHeavy returns n simplify events of which rejected are rejections.
func rejectHeavy(n, rejected int, ts time.Time) []domain.FeedbackEvent {
	events := make([]domain.FeedbackEvent, 0, n)
	for i := 0; i < n; i++ {
		action := domain.UserActionAccept
		if i < rejected {
			action = domain.UserActionReject
		}
		events = append(events, engagedEvent(fmt.Sprintf("c%d", i), domain.StrategySimplify, action, ts))
	}
	return events
}

func TestAggregationService_InsufficientData(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(5, 5, time.Now()))
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 50}, testLogger())

	res := svc.Aggregate(context.Background())

	assert.Equal(t, domain.ReasonInsufficientData, res.Reason)
	assert.NotNil(t, res.Suggestions)
	assert.Empty(t, res.Suggestions)
	assert.NotNil(t, res.Patterns)
	assert.Empty(t, res.Patterns)
	assert.False(t, res.GeneratedAt.IsZero())
}

func TestAggregationService_CountsOnlyDislikesTowardMinimum(t *testing.T) {
	storage := &countingStorage{ResilientStorage: newTestStorage(t)}
	events := rejectHeavy(5, 5, time.Now())
	for i := 0; i < 20; i++ {
		like := engagedEvent(fmt.Sprintf("l%d", i), domain.StrategySimplify, domain.UserActionAccept, time.Now())
		like.FeedbackType = domain.FeedbackTypeThumbUp
		like.Rating = domain.RatingLike
		events = append(events, like)
	}
	seedEvents(t, storage, events)
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	assert.Equal(t, domain.ReasonInsufficientData, res.Reason)
	assert.Equal(t, int32(1), storage.counts.Load())
	assert.Zero(t, res.Metadata.RawCount)
}

func TestAggregationService_RejectPatternWithFallbackSuggestion(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(60, 35, time.Now().Add(-time.Hour)))
	gen := llm.NewMockClient()
	gen.Error = domain.ErrAIService
	svc := NewAggregationService(storage, nil, gen, AggregationOptions{}, testLogger())

	res := svc.Aggregate(context.Background())

	require.Empty(t, res.Reason)
	require.Len(t, res.Patterns, 1)
	p := res.Patterns[0]
	assert.Equal(t, domain.PatternHighRejectRate, p.Type)
	assert.Equal(t, domain.StrategySimplify, p.Strategy)
	assert.InDelta(t, 0.58, p.Rate, 0.01)
	assert.Equal(t, 60, p.SampleSize)
	assert.Equal(t, domain.SeverityMedium, p.Severity)

	require.Len(t, res.Suggestions, 1)
	sg := res.Suggestions[0]
	assert.Equal(t, domain.SuggestionSourceFallback, sg.Source)
	assert.Contains(t, sg.Description, "simplify")
	assert.Contains(t, sg.Description, "58")
	assert.Equal(t, "medium", sg.Priority)

	assert.Equal(t, 60, res.Metadata.RawCount)
	assert.Equal(t, 60, res.Metadata.QualityCount)
	assert.Equal(t, 1, res.Metadata.PatternCount)
	assert.Equal(t, 1, res.Metadata.SuggestionCount)

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, latest.Suggestions, 1)
	assert.Equal(t, sg.Description, latest.Suggestions[0].Description)
}

func TestAggregationService_MirrorsResultToUploader(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 20, time.Now()))
	up := newMockUploader()
	svc := NewAggregationService(storage, up, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	require.Len(t, up.Batches(), 1)
	assert.Same(t, res, up.Batches()[0][0])
	assert.Equal(t, domain.SeverityHigh, res.Patterns[0].Severity)
	assert.Equal(t, "high", res.Suggestions[0].Priority)
}

func TestAggregationService_AISuggestion(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 15, time.Now()))
	gen := llm.NewMockClient()
	gen.Response = &domain.Generation{Text: "```json\n{\"title\": \"Shorten simplify output\", \"description\": \"Cap rewrites at two sentences.\", \"priority\": \"LOW\"}\n```"}
	svc := NewAggregationService(storage, nil, gen, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	require.Len(t, res.Suggestions, 1)
	sg := res.Suggestions[0]
	assert.Equal(t, domain.SuggestionSourceAI, sg.Source)
	assert.Equal(t, "Shorten simplify output", sg.Title)
	assert.Equal(t, "low", sg.Priority)
	assert.Equal(t, res.Patterns[0], sg.Pattern)
}

func TestAggregationService_InvalidAISuggestionFallsBack(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 15, time.Now()))
	gen := llm.NewMockClient()
	gen.Response = &domain.Generation{Text: `{"title": "", "description": "missing title"}`}
	svc := NewAggregationService(storage, nil, gen, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, domain.SuggestionSourceFallback, res.Suggestions[0].Source)
}

func TestAggregationService_SlowAISuggestionFallsBack(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 15, time.Now()))
	gen := llm.NewMockClient()
	gen.Delay = 5 * time.Second
	svc := NewAggregationService(storage, nil, gen, AggregationOptions{MinFeedbackCount: 10, SuggestionTimeout: 50 * time.Millisecond}, testLogger())

	start := time.Now()
	res := svc.Aggregate(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, domain.SuggestionSourceFallback, res.Suggestions[0].Source)
}

func TestAggregationService_SuggestionsKeepPatternOrder(t *testing.T) {
	storage := newTestStorage(t)
	now := time.Now()
	events := rejectHeavy(15, 12, now)
	for i := 0; i < 15; i++ {
		action := domain.UserActionAccept
		if i < 6 {
			action = domain.UserActionRetry
		}
		events = append(events, engagedEvent(fmt.Sprintf("e%d", i), domain.StrategyElaborate, action, now))
	}
	seedEvents(t, storage, events)
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	require.Len(t, res.Patterns, 2)
	require.Len(t, res.Suggestions, 2)
	for i := range res.Patterns {
		assert.Equal(t, res.Patterns[i], res.Suggestions[i].Pattern)
	}
	assert.Equal(t, domain.PatternHighRetryRate, res.Patterns[0].Type)
	assert.Equal(t, domain.StrategyElaborate, res.Patterns[0].Strategy)
	assert.Equal(t, domain.PatternHighRejectRate, res.Patterns[1].Type)
}

func TestAggregationService_NoData(t *testing.T) {
	storage := newTestStorage(t)
	old := rejectHeavy(12, 12, time.Now().Add(-8*24*time.Hour))
	likes := rejectHeavy(12, 0, time.Now())
	for i := range likes {
		likes[i].Rating = domain.RatingLike
	}
	seedEvents(t, storage, append(old, likes...))
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	assert.Equal(t, domain.ReasonNoData, res.Reason)
	assert.Equal(t, 0, res.Metadata.RawCount)
}

func TestAggregationService_NoQualityData(t *testing.T) {
	storage := newTestStorage(t)
	events := rejectHeavy(12, 12, time.Now())
	for i := range events {
		events[i].AlternativeID = ""
		events[i].UserAction = ""
	}
	seedEvents(t, storage, events)
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	assert.Equal(t, domain.ReasonNoQualityData, res.Reason)
	assert.Equal(t, 12, res.Metadata.RawCount)
}

func TestAggregationService_NoPatterns(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(12, 0, time.Now()))
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	res := svc.Aggregate(context.Background())

	assert.Equal(t, domain.ReasonNoPatterns, res.Reason)
	assert.Equal(t, 12, res.Metadata.QualityCount)
	assert.Empty(t, res.Suggestions)

	_, err := svc.Latest(context.Background())
	assert.Error(t, err, "short-circuited runs are not persisted")
}

func TestAggregationService_QueryTimeoutUsesCachedResult(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 15, time.Now()))
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	first := svc.Aggregate(context.Background())
	require.Empty(t, first.Reason)

	slow := &slowQueryStorage{ResilientStorage: storage}
	svc.storage = slow
	svc.opts.Timeout = 50 * time.Millisecond

	second := svc.Aggregate(context.Background())

	assert.Equal(t, int32(1), slow.queries.Load())
	assert.Empty(t, second.Reason)
	assert.Equal(t, first.Metadata.RawCount, second.Metadata.RawCount)
	assert.Equal(t, first.Patterns, second.Patterns)
}

func TestAggregationService_QueryTimeoutWithoutCacheIsNoData(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 15, time.Now()))
	svc := NewAggregationService(&slowQueryStorage{ResilientStorage: storage}, nil, nil, AggregationOptions{MinFeedbackCount: 10}, testLogger())
	svc.opts.Timeout = 50 * time.Millisecond

	res := svc.Aggregate(context.Background())

	assert.Equal(t, domain.ReasonNoData, res.Reason)
}

func TestAggregationService_BrokenStorageReportsError(t *testing.T) {
	for _, panics := range []bool{false, true} {
		svc := NewAggregationService(&brokenStorage{panic: panics}, nil, nil, AggregationOptions{}, testLogger())

		assert.NotPanics(t, func() {
			res := svc.Aggregate(context.Background())
			assert.Equal(t, domain.ReasonError, res.Reason)
			assert.NotNil(t, res.Suggestions)
			assert.NotNil(t, res.Patterns)
		})
	}
}

func TestAggregationService_PanickingGeneratorFallsBack(t *testing.T) {
	storage := newTestStorage(t)
	seedEvents(t, storage, rejectHeavy(20, 15, time.Now()))
	gen := llm.NewMockClient()
	gen.Panic = "model exploded"
	svc := NewAggregationService(storage, nil, gen, AggregationOptions{MinFeedbackCount: 10}, testLogger())

	var res *domain.AggregationResult
	assert.NotPanics(t, func() { res = svc.Aggregate(context.Background()) })
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, domain.SuggestionSourceFallback, res.Suggestions[0].Source)
}

func TestDedupeByContent_KeepsLatest(t *testing.T) {
	base := time.Now()
	events := []domain.FeedbackEvent{
		{ContentID: "a", Timestamp: base, Comment: "first"},
		{ContentID: "b", Timestamp: base},
		{ContentID: "a", Timestamp: base.Add(2 * time.Minute), Comment: "latest"},
		{ContentID: "a", Timestamp: base.Add(time.Minute), Comment: "middle"},
	}

	got := dedupeByContent(events)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ContentID)
	assert.Equal(t, "latest", got[0].Comment)
	assert.Equal(t, "b", got[1].ContentID)
}

func TestFilterQuality(t *testing.T) {
	now := time.Now()
	gap := func(d time.Duration) domain.FeedbackEvent {
		ev := engagedEvent("c", domain.StrategySimplify, domain.UserActionReject, now)
		ft := now.Add(-d)
		ev.FeedbackTime = &ft
		return ev
	}

	tests := []struct {
		name string
		ev   domain.FeedbackEvent
		keep bool
	}{
		{"engaged", engagedEvent("c", domain.StrategySimplify, domain.UserActionReject, now), true},
		{"missing rating", func() domain.FeedbackEvent {
			ev := engagedEvent("c", domain.StrategySimplify, domain.UserActionReject, now)
			ev.Rating = ""
			return ev
		}(), false},
		{"missing timestamp", func() domain.FeedbackEvent {
			ev := engagedEvent("c", domain.StrategySimplify, domain.UserActionReject, now)
			ev.Timestamp = time.Time{}
			return ev
		}(), false},
		{"alternative only", func() domain.FeedbackEvent {
			ev := engagedEvent("c", domain.StrategySimplify, "", now)
			return ev
		}(), true},
		{"no engagement", func() domain.FeedbackEvent {
			ev := engagedEvent("c", domain.StrategySimplify, "", now)
			ev.AlternativeID = ""
			return ev
		}(), false},
		{"accidental tap", gap(1999 * time.Millisecond), false},
		{"deliberate", gap(2 * time.Second), true},
		{"no timing", func() domain.FeedbackEvent {
			ev := engagedEvent("c", domain.StrategySimplify, domain.UserActionReject, now)
			ev.ActionTime = nil
			return ev
		}(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterQuality([]domain.FeedbackEvent{tt.ev})
			assert.Equal(t, tt.keep, len(got) == 1)
		})
	}
}

func TestRejectPattern_Thresholds(t *testing.T) {
	th := domain.DefaultPatternThresholds()

	_, ok := rejectPattern(domain.StrategySimplify, 0.5, 11, th)
	assert.False(t, ok, "rate equal to threshold is not flagged")

	p, ok := rejectPattern(domain.StrategySimplify, 0.51, 11, th)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityMedium, p.Severity)

	p, ok = rejectPattern(domain.StrategySimplify, 0.71, 11, th)
	require.True(t, ok)
	assert.Equal(t, domain.SeverityHigh, p.Severity)

	_, ok = rejectPattern(domain.StrategySimplify, 0.9, 10, th)
	assert.False(t, ok, "sample size must exceed the minimum")
}

func TestRetryPattern_Thresholds(t *testing.T) {
	th := domain.DefaultPatternThresholds()

	_, ok := retryPattern(domain.StrategyReframe, 0.3, 20, th)
	assert.False(t, ok)

	p, ok := retryPattern(domain.StrategyReframe, 0.31, 20, th)
	require.True(t, ok)
	assert.Equal(t, domain.PatternHighRetryRate, p.Type)
	assert.Equal(t, domain.SeverityMedium, p.Severity)
}

func TestDetectPatterns_CustomThresholds(t *testing.T) {
	events := rejectHeavy(6, 2, time.Now())
	th := domain.PatternThresholds{RejectRate: 0.2, HighRejectRate: 0.9, RetryRate: 0.5, MinSampleSize: 5}

	patterns := detectPatterns(events, th)

	require.Len(t, patterns, 1)
	assert.Equal(t, domain.PatternHighRejectRate, patterns[0].Type)
	assert.Equal(t, 6, patterns[0].SampleSize)
}

func TestTemplateSuggestion(t *testing.T) {
	sg := templateSuggestion(domain.Pattern{Type: domain.PatternHighRetryRate, Strategy: domain.StrategyReframe, Rate: 0.346, SampleSize: 40})
	assert.Contains(t, sg.Description, "reframe")
	assert.Contains(t, sg.Description, "35%")
	assert.Contains(t, sg.Description, "40")

	sg = templateSuggestion(domain.Pattern{Type: "low_accept_rate", Strategy: domain.StrategySimplify, Rate: 0.2, SampleSize: 12})
	assert.Equal(t, "Investigate simplify feedback", sg.Title)
	assert.Equal(t, domain.SuggestionSourceFallback, sg.Source)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(` {"a":1} `))
}

func TestDecodeEvents_NewestFirstAndCapped(t *testing.T) {
	storage := newTestStorage(t)
	base := time.Now()
	var events []domain.FeedbackEvent
	for i := 0; i < 5; i++ {
		events = append(events, domain.FeedbackEvent{ContentID: fmt.Sprintf("c%d", i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	seedEvents(t, storage, events)
	raws, err := storage.Query(context.Background(), DefaultEventsKey, nil)
	require.NoError(t, err)

	got := decodeEvents(raws, 3)

	require.Len(t, got, 3)
	assert.Equal(t, "c4", got[0].ContentID)
	assert.Equal(t, "c2", got[2].ContentID)
}

func TestAggregationOptions_Clamping(t *testing.T) {
	got := AggregationOptions{}.withDefaults()
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.Equal(t, 50, got.MinFeedbackCount)
	assert.Equal(t, 1000, got.BatchSize)
	assert.Equal(t, DefaultAggregationKey, got.StorageKey)
	assert.Equal(t, domain.DefaultPatternThresholds(), got.Thresholds)
	assert.Equal(t, 2*time.Second, got.SuggestionTimeout)

	got = AggregationOptions{Timeout: time.Second, MinFeedbackCount: 3, BatchSize: 5}.withDefaults()
	assert.Equal(t, 10*time.Second, got.Timeout)
	assert.Equal(t, 10, got.MinFeedbackCount)
	assert.Equal(t, 100, got.BatchSize)

	got = AggregationOptions{Timeout: time.Hour, BatchSize: 50000}.withDefaults()
	assert.Equal(t, 60*time.Second, got.Timeout)
	assert.Equal(t, 10000, got.BatchSize)
}

func TestAggregationOptions_PartialThresholds(t *testing.T) {
	got := AggregationOptions{Thresholds: domain.PatternThresholds{RejectRate: 0.4}}.withDefaults()

	def := domain.DefaultPatternThresholds()
	assert.Equal(t, 0.4, got.Thresholds.RejectRate)
	assert.Equal(t, def.HighRejectRate, got.Thresholds.HighRejectRate)
	assert.Equal(t, def.RetryRate, got.Thresholds.RetryRate)
	assert.Equal(t, def.MinSampleSize, got.Thresholds.MinSampleSize)
}

func TestAggregationScheduler_RunsAndStops(t *testing.T) {
	storage := &countingStorage{ResilientStorage: newTestStorage(t)}
	svc := NewAggregationService(storage, nil, nil, AggregationOptions{}, testLogger())
	sched := NewAggregationScheduler(svc, testLogger())
	sched.SetInterval(20 * time.Millisecond)

	sched.Start()
	assert.Eventually(t, func() bool { return storage.counts.Load() >= 1 }, time.Second, 10*time.Millisecond)
	sched.Stop()

	assert.NotPanics(t, sched.Stop)
}
