package service

import (
	"fmt"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

// Persisted keys shared by the services.
const (
	DefaultEventsKey      = "feedback_events"
	DefaultHistoryKey     = "short_term_feedback_history"
	DefaultAggregationKey = "feedback_aggregation_results"

	// defaultMaxStoredEvents caps the fallback event array in storage.
	defaultMaxStoredEvents = 10000
)

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// safely runs fn and converts a panic into a transient IO error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: recovered panic: %v", domain.ErrTransientIO, r)
		}
	}()
	return fn()
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
