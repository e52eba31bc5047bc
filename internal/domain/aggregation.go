package domain

import "time"

type PatternType string

const (
	PatternHighRejectRate PatternType = "high_reject_rate"
	PatternHighRetryRate  PatternType = "high_retry_rate"
)

type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Pattern is a behavioral anomaly detected for one strategy.
// Patterns are never persisted on their own; they travel inside a Suggestion.
type Pattern struct {
	Type       PatternType `json:"type"`
	Strategy   StrategyID  `json:"strategy"`
	Rate       float64     `json:"rate"`
	SampleSize int         `json:"sample_size"`
	Severity   Severity    `json:"severity"`
}

type SuggestionSource string

const (
	SuggestionSourceAI       SuggestionSource = "ai"
	SuggestionSourceFallback SuggestionSource = "fallback"
)

type Suggestion struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    string           `json:"priority"`
	Source      SuggestionSource `json:"source"`
	Pattern     Pattern          `json:"pattern"`
}

// AggregationReason explains an empty aggregation outcome.
type AggregationReason string

const (
	ReasonInsufficientData AggregationReason = "insufficient_data"
	ReasonNoData           AggregationReason = "no_data"
	ReasonNoQualityData    AggregationReason = "no_quality_data"
	ReasonNoPatterns       AggregationReason = "no_patterns"
	ReasonError            AggregationReason = "error"
)

type AggregationMetadata struct {
	RawCount        int   `json:"raw_count"`
	QualityCount    int   `json:"quality_count"`
	PatternCount    int   `json:"pattern_count"`
	SuggestionCount int   `json:"suggestion_count"`
	DurationMs      int64 `json:"duration_ms"`
}

// AggregationResult is the terminal artifact of an aggregation run.
// Suggestions and Patterns are always non-nil so clients see [] rather than null.
type AggregationResult struct {
	Suggestions []Suggestion        `json:"suggestions"`
	Patterns    []Pattern           `json:"patterns"`
	Metadata    AggregationMetadata `json:"metadata"`
	Reason      AggregationReason   `json:"reason,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// PatternThresholds controls pattern detection.
type PatternThresholds struct {
	RejectRate     float64 `json:"reject_rate"`
	HighRejectRate float64 `json:"high_reject_rate"`
	RetryRate      float64 `json:"retry_rate"`
	MinSampleSize  int     `json:"min_sample_size"`
}

func DefaultPatternThresholds() PatternThresholds {
	return PatternThresholds{
		RejectRate:     0.5,
		HighRejectRate: 0.7,
		RetryRate:      0.3,
		MinSampleSize:  10,
	}
}

// WithDefaults fills every zero field from DefaultPatternThresholds.
func (t PatternThresholds) WithDefaults() PatternThresholds {
	def := DefaultPatternThresholds()
	if t.RejectRate == 0 {
		t.RejectRate = def.RejectRate
	}
	if t.HighRejectRate == 0 {
		t.HighRejectRate = def.HighRejectRate
	}
	if t.RetryRate == 0 {
		t.RetryRate = def.RetryRate
	}
	if t.MinSampleSize == 0 {
		t.MinSampleSize = def.MinSampleSize
	}
	return t
}
