package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultAggregationInterval = 7 * 24 * time.Hour

// AggregationScheduler runs the aggregation pipeline on a fixed schedule.
type AggregationScheduler struct {
	aggregator *AggregationService
	logger     *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAggregationScheduler(aggregator *AggregationService, logger *zap.Logger) *AggregationScheduler {
	return &AggregationScheduler{
		aggregator: aggregator,
		logger:     logger,
		interval:   defaultAggregationInterval,
		stopCh:     make(chan struct{}),
	}
}

func (s *AggregationScheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the aggregation on a periodic schedule in a background goroutine.
func (s *AggregationScheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("aggregation scheduler started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.run()
			case <-s.stopCh:
				s.logger.Info("aggregation scheduler stopped")
				return
			}
		}
	}()
}

func (s *AggregationScheduler) run() {
	// The pipeline bounds its own query; this covers suggestions and persistence.
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.aggregator.Options().Timeout)
	defer cancel()

	result := s.aggregator.Aggregate(ctx)
	if result.Reason != "" {
		s.logger.Info("scheduled aggregation produced no suggestions", zap.String("reason", string(result.Reason)))
	}
}

// Stop gracefully stops the scheduler. It is safe to call more than once.
func (s *AggregationScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
