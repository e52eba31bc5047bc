package api

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/feedbackd/internal/api/handlers"
	mw "github.com/Harshitk-cp/feedbackd/internal/api/middleware"
	"github.com/Harshitk-cp/feedbackd/internal/buildconfig"
	"github.com/Harshitk-cp/feedbackd/internal/config"
	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/llm"
	"github.com/Harshitk-cp/feedbackd/internal/service"
	"github.com/Harshitk-cp/feedbackd/internal/uploader"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router      *chi.Mux
	Feedback    *service.FeedbackService
	ShortTerm   *service.ShortTermService
	Aggregation *service.AggregationService
	Scheduler   *service.AggregationScheduler
}

// NewApp wires the services from config. up and gen may be nil: without an
// uploader every batch goes to storage, without a generator every remediation
// and suggestion uses its template.
func NewApp(storage domain.Storage, up domain.Uploader, gen domain.Generator, logger *zap.Logger) *App {
	feedbackSvc := service.NewFeedbackService(storage, up, service.FeedbackOptions{
		MaxBufferSize: config.FeedbackMaxBufferSize(),
		FlushInterval: config.FeedbackFlushInterval(),
	}, logger)

	shortTermSvc := service.NewShortTermService(storage, up, gen, service.ShortTermOptions{
		ResponseTimeout: config.ShortTermResponseTimeout(),
		MaxHistoryItems: config.ShortTermMaxHistoryItems(),
	}, logger)

	aggregationSvc := service.NewAggregationService(storage, up, gen, service.AggregationOptions{
		Timeout:          config.AggregationTimeout(),
		MinFeedbackCount: config.AggregationMinFeedbackCount(),
		BatchSize:        config.AggregationBatchSize(),
	}, logger)

	scheduler := service.NewAggregationScheduler(aggregationSvc, logger)
	scheduler.SetInterval(config.AggregationInterval())

	// Handlers
	feedbackHandler := handlers.NewFeedbackHandler(feedbackSvc, shortTermSvc)
	aggregationHandler := handlers.NewAggregationHandler(aggregationSvc)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Feedback:    feedbackSvc,
		ShortTerm:   shortTermSvc,
		Aggregation: aggregationSvc,
		Scheduler:   scheduler,
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                 // Generate/extract request ID first
	r.Use(middleware.RealIP)                                            // Extract real IP
	r.Use(mw.Metrics)                                                   // Count requests
	r.Use(mw.Logging(logger))                                           // Log all requests
	r.Use(middleware.Recoverer)                                         // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst())) // Rate limiting

	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/feedback", func(r chi.Router) {
			r.Post("/", feedbackHandler.Submit)
			r.Post("/flush", feedbackHandler.Flush)
			r.Post("/remediations", feedbackHandler.Remediate)
			r.Post("/{contentID}/actions", feedbackHandler.LogAction)
		})

		r.Route("/aggregations", func(r chi.Router) {
			r.Post("/", aggregationHandler.Run)
			r.Get("/latest", aggregationHandler.Latest)
		})
	})

	return app
}

// Start launches the background flush loop and the aggregation schedule.
func (app *App) Start() {
	app.Feedback.Start()
	app.Scheduler.Start()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	info := buildconfig.Info()
	info["status"] = "ok"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(info)
}

// Ensure collaborators satisfy interfaces at compile time.
var (
	_ domain.Uploader  = (*uploader.Uploader)(nil)
	_ domain.Generator = (*llm.OpenAIClient)(nil)
	_ domain.Generator = (*llm.AnthropicClient)(nil)
	_ domain.Generator = (*llm.GeminiClient)(nil)
	_ domain.Generator = (*llm.MockClient)(nil)
)
