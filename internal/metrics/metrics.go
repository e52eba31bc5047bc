// Package metrics exposes Prometheus collectors for the feedback pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedbackd"

var (
	// HTTPRequests counts API requests.
	// Labels: method, status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "status"},
	)

	// StorageOperations counts storage adapter calls.
	// Labels: op (save, load), result (success, error, quota_exceeded, corrupted)
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage operations by result",
		},
		[]string{"op", "result"},
	)

	// UploadAttempts counts transport attempts made by the uploader.
	// Labels: outcome (success, retryable, terminal)
	UploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Total number of upload transport attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FlushedEvents counts buffered events by where they ended up.
	// Labels: sink (uploader, storage, dropped)
	FlushedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "flushed_events_total",
			Help:      "Total number of buffered feedback events by sink",
		},
		[]string{"sink"},
	)

	// RemediationLatency tracks short-term remediation latency.
	// Labels: fallback (true, false)
	RemediationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remediation",
			Name:      "latency_seconds",
			Help:      "Latency of short-term remediation in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5},
		},
		[]string{"fallback"},
	)

	// RemediationFailures counts AI failures that fell back to a template.
	// Labels: kind (TIMEOUT, AI_FAILURE)
	RemediationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remediation",
			Name:      "failures_total",
			Help:      "Total number of remediation generation failures by kind",
		},
		[]string{"kind"},
	)

	// AggregationRuns counts aggregation runs by outcome reason ("ok" on success).
	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "runs_total",
			Help:      "Total number of aggregation runs by reason",
		},
		[]string{"reason"},
	)

	// AggregationDuration tracks aggregation pipeline duration.
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Duration of aggregation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
