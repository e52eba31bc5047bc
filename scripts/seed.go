// Seed script for filling the feedback event log with demo data, so that an
// aggregation run has enough quality events to detect patterns.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/config"
	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/service"
	"github.com/Harshitk-cp/feedbackd/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// rejectRates skews the demo data so elaborate trips the reject threshold.
var rejectRates = map[domain.StrategyID]float64{
	domain.StrategySimplify:  0.2,
	domain.StrategyElaborate: 0.6,
	domain.StrategyReframe:   0.3,
}

func main() {
	count := flag.Int("n", 120, "number of events to create")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	cfg := store.BackendConfig{
		Driver:     config.StorageDriver(),
		SQLitePath: config.SQLitePath(),
	}
	if cfg.Driver == store.DriverMemory || cfg.Driver == "" {
		log.Fatalf("STORAGE_DRIVER=%q does not persist; use sqlite or postgres", cfg.Driver)
	}
	if cfg.Driver == store.DriverPostgres {
		pool, err := pgxpool.New(ctx, config.DatabaseURL())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		cfg.Pool = pool
	}

	backend, err := store.NewBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}
	storage := store.NewResilientStorage(backend, zap.NewNop())

	strategies := []domain.StrategyID{domain.StrategySimplify, domain.StrategyElaborate, domain.StrategyReframe}
	contentTypes := []domain.ContentType{
		domain.ContentTypeTranslation,
		domain.ContentTypeWriting,
		domain.ContentTypeRecommendation,
		domain.ContentTypeConversation,
	}

	now := time.Now().UTC()
	events := make([]domain.FeedbackEvent, 0, *count)
	perStrategy := make(map[domain.StrategyID]int)

	for i := 0; i < *count; i++ {
		strat := strategies[i%len(strategies)]
		feedbackAt := now.Add(-time.Duration(rand.IntN(6*24)) * time.Hour)
		actionAt := feedbackAt.Add(time.Duration(3+rand.IntN(60)) * time.Second)

		action := domain.UserActionAccept
		if rand.Float64() < rejectRates[strat] {
			action = domain.UserActionReject
		} else if rand.Float64() < 0.1 {
			action = domain.UserActionRetry
		}

		events = append(events, domain.FeedbackEvent{
			ContentID:     fmt.Sprintf("demo-%03d", i),
			ContentType:   contentTypes[rand.IntN(len(contentTypes))],
			FeedbackType:  domain.FeedbackTypeThumbDown,
			Rating:        domain.RatingDislike,
			Timestamp:     actionAt,
			Strategy:      strat,
			UserAction:    action,
			AlternativeID: uuid.NewString(),
			ActionTime:    &actionAt,
			FeedbackTime:  &feedbackAt,
		})
		perStrategy[strat]++
	}

	if err := store.AppendCapped(ctx, storage, service.DefaultEventsKey, 0, events...); err != nil {
		log.Fatalf("Failed to write events: %v", err)
	}

	fmt.Println("\n========================================")
	fmt.Println("Demo data created successfully!")
	fmt.Println("========================================")
	fmt.Printf("\nStorage driver: %s\n", cfg.Driver)
	fmt.Printf("Events key:     %s\n", service.DefaultEventsKey)
	for _, s := range strategies {
		fmt.Printf("  %-10s %d events\n", s, perStrategy[s])
	}
	fmt.Println("\nTrigger an aggregation run with:")
	fmt.Println("  curl -X POST http://localhost:8080/v1/aggregations")
	fmt.Println()
}
