// Package uploader ships feedback batches to the remote collector with a
// bounded, fixed-delay retry policy.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/buildconfig"
	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("uploader base url is not configured")
	ErrRejected      = errors.New("upload rejected by collector")
	ErrUploadFailed  = fmt.Errorf("%w: upload failed after retries", domain.ErrTransientIO)
)

const (
	defaultTimeout    = 30 * time.Second
	minTimeout        = 5 * time.Second
	maxTimeout        = 60 * time.Second
	defaultMaxRetries = 3
	maxMaxRetries     = 5
	defaultRetryDelay = 2 * time.Second
	minRetryDelay     = 1 * time.Second
	maxRetryDelay     = 10 * time.Second
)

// NoRetries disables retries when set as Options.MaxRetries.
const NoRetries = -1

// Options configures the uploader. Out-of-range values are clamped.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// MaxRetries of 0 uses the default. Use NoRetries for a single attempt.
	MaxRetries int
	RetryDelay time.Duration
	ClientID   string
}

// DefaultOptions returns the default uploader configuration.
func DefaultOptions() Options {
	return Options{
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	o.Timeout = clampDuration(o.Timeout, minTimeout, maxTimeout)

	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = defaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.MaxRetries > maxMaxRetries {
		o.MaxRetries = maxMaxRetries
	}

	if o.RetryDelay == 0 {
		o.RetryDelay = defaultRetryDelay
	}
	o.RetryDelay = clampDuration(o.RetryDelay, minRetryDelay, maxRetryDelay)

	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	return o
}

// HTTPDoer is the transport used for uploads. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeTerminal
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeRetryable:
		return "retryable"
	default:
		return "terminal"
	}
}

type Uploader struct {
	opts   Options
	client HTTPDoer
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(opts Options, client HTTPDoer, logger *zap.Logger) *Uploader {
	if client == nil {
		client = &http.Client{}
	}
	return &Uploader{
		opts:   opts.withDefaults(),
		client: client,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Options returns the effective (clamped) configuration.
func (u *Uploader) Options() Options {
	return u.opts
}

type uploadRequest struct {
	Events    []any     `json:"events"`
	Timestamp time.Time `json:"timestamp"`
	ClientID  string    `json:"client_id"`
}

// Upload posts events to the collector. An empty batch succeeds without a
// request. Retryable failures (5xx, network errors, timeouts) are retried after
// a fixed delay, so at most MaxRetries+1 attempts are made. 4xx responses fail
// immediately with ErrRejected.
func (u *Uploader) Upload(ctx context.Context, events []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("upload panicked", zap.Any("panic", r))
			err = fmt.Errorf("%w: upload panicked: %v", domain.ErrTransientIO, r)
		}
	}()

	if len(events) == 0 {
		return nil
	}
	if u.opts.BaseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(uploadRequest{
		Events:    events,
		Timestamp: time.Now().UTC(),
		ClientID:  u.opts.ClientID,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal upload request: %v", domain.ErrValidation, err)
	}

	var lastErr error
	for attempt := 0; attempt <= u.opts.MaxRetries; attempt++ {
		out, err := u.attempt(ctx, body)
		metrics.UploadAttempts.WithLabelValues(out.String()).Inc()

		switch out {
		case outcomeSuccess:
			if attempt > 0 {
				u.logger.Info("upload recovered after retries",
					zap.Int("attempts", attempt+1),
					zap.Int("events", len(events)))
			}
			return nil
		case outcomeTerminal:
			u.logger.Warn("upload rejected", zap.Int("events", len(events)), zap.Error(err))
			return err
		}

		lastErr = err
		if attempt == u.opts.MaxRetries {
			break
		}

		u.logger.Debug("upload failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", u.opts.RetryDelay),
			zap.Error(err))

		if err := u.sleep(ctx, u.opts.RetryDelay); err != nil {
			return fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
	}

	u.logger.Warn("upload failed",
		zap.Int("attempts", u.opts.MaxRetries+1),
		zap.Int("events", len(events)),
		zap.Error(lastErr))
	return fmt.Errorf("%w: %v", ErrUploadFailed, lastErr)
}

func (u *Uploader) attempt(ctx context.Context, body []byte) (outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return outcomeTerminal, fmt.Errorf("%w: create upload request: %v", domain.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildconfig.UserAgent())

	resp, err := u.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return outcomeRetryable, fmt.Errorf("%w: upload request: %v", domain.ErrTimeout, err)
		}
		return outcomeRetryable, fmt.Errorf("%w: upload request: %v", domain.ErrTransientIO, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeSuccess, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return outcomeTerminal, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return outcomeRetryable, fmt.Errorf("%w: collector returned status %d", domain.ErrTransientIO, resp.StatusCode)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
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
