package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/api"
	"github.com/Harshitk-cp/feedbackd/internal/buildconfig"
	"github.com/Harshitk-cp/feedbackd/internal/config"
	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/llm"
	"github.com/Harshitk-cp/feedbackd/internal/store"
	"github.com/Harshitk-cp/feedbackd/internal/uploader"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	backendCfg := store.BackendConfig{
		Driver:     config.StorageDriver(),
		SQLitePath: config.SQLitePath(),
	}
	if backendCfg.Driver == store.DriverPostgres {
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres storage driver")
		}

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")
		backendCfg.Pool = pool
	}

	backend, err := store.NewBackend(ctx, backendCfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.String("driver", backendCfg.Driver), zap.Error(err))
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}
	storage := store.NewResilientStorage(backend, logger)
	logger.Info("storage initialized", zap.String("driver", backendCfg.Driver))

	// Interfaces stay nil rather than holding typed nil pointers.
	var up domain.Uploader
	if baseURL := config.UploadBaseURL(); baseURL != "" {
		opts := uploader.DefaultOptions()
		opts.BaseURL = baseURL
		if d := config.UploadTimeout(); d > 0 {
			opts.Timeout = d
		}
		switch n := config.UploadMaxRetries(); {
		case n == 0:
			opts.MaxRetries = uploader.NoRetries
		case n > 0:
			opts.MaxRetries = n
		}
		if d := config.UploadRetryDelay(); d > 0 {
			opts.RetryDelay = d
		}
		u := uploader.New(opts, nil, logger)
		logger.Info("uploader initialized",
			zap.String("base_url", baseURL),
			zap.Int("max_retries", u.Options().MaxRetries))
		up = u
	} else {
		logger.Info("UPLOAD_BASE_URL not set, feedback will be kept in storage")
	}

	llmProvider := config.LLMProvider()
	gen, err := llm.NewClient(llmProvider, config.LLMAPIKey())
	if err != nil {
		logger.Warn("LLM client initialization failed, using templates only", zap.String("provider", llmProvider), zap.Error(err))
		gen = nil
	} else if gen != nil {
		logger.Info("LLM client initialized", zap.String("provider", llmProvider))
	}

	app := api.NewApp(storage, up, gen, logger)
	app.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services, then flush what is left in the buffer.
	app.Scheduler.Stop()
	app.Feedback.Destroy(shutdownCtx)
	app.ShortTerm.Wait()

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
