// Package maintenance runs the periodic background passes as Go tickers:
// leaderboard polling and new-city geocoding. External cron can drive the
// same passes through the HTTP endpoints; the tickers are for deployments
// that keep the API process running.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/poll"
	"github.com/albapepper/burrito-league/internal/sentry"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// captureException reports failed passes. Replaced in tests.
var captureException = sentry.CaptureException

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	PollInterval    time.Duration
	GeocodeInterval time.Duration
	// Timeout bounds one pass; zero means no bound beyond ctx.
	Timeout time.Duration
}

// Poller runs one poll pass.
type Poller interface {
	Run(ctx context.Context, opts poll.Options) (*poll.Result, error)
}

// PrePoller runs one geocoding pass.
type PrePoller interface {
	Run(ctx context.Context) (*geocode.PrePollResult, error)
}

// Start launches the configured tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func Start(ctx context.Context, cfg Config, poller Poller, prePoller PrePoller, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Maintenance tickers started",
		"poll", cfg.PollInterval,
		"geocode", cfg.GeocodeInterval)

	done := make(chan struct{})
	running := 0

	if cfg.PollInterval > 0 && poller != nil {
		t := time.NewTicker(cfg.PollInterval)
		defer t.Stop()
		running++
		go runLoop(ctx, t.C, done, func() { runPoll(ctx, cfg.Timeout, poller, logger) })
	}

	if cfg.GeocodeInterval > 0 && prePoller != nil {
		t := time.NewTicker(cfg.GeocodeInterval)
		defer t.Stop()
		running++
		go runLoop(ctx, t.C, done, func() { runPrePoll(ctx, cfg.Timeout, prePoller, logger) })
	}

	<-ctx.Done()
	for i := 0; i < running; i++ {
		<-done
	}
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, done chan<- struct{}, fn func()) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func runPoll(ctx context.Context, timeout time.Duration, poller Poller, logger *slog.Logger) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	res, err := poller.Run(ctx, poll.Options{Source: snapshot.SourceScheduled})
	if err != nil {
		logger.Warn("Scheduled poll failed", "error", err)
		captureException(err, map[string]string{"op": "poll", "source": string(snapshot.SourceScheduled)}, logger)
		return
	}
	logger.Info("Scheduled poll complete", "summary", res.Summary())
}

func runPrePoll(ctx context.Context, timeout time.Duration, prePoller PrePoller, logger *slog.Logger) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	res, err := prePoller.Run(ctx)
	if err != nil {
		logger.Warn("Scheduled geocode failed", "error", err)
		captureException(err, map[string]string{"op": "pre-poll"}, logger)
		return
	}
	logger.Info("Scheduled geocode complete", "summary", res.Summary())
}
