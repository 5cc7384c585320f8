// Package poll runs one orchestration pass: read the chapter sheet, fetch a
// leaderboard for every resolved chapter, record the poll run and hand the
// batch to the snapshot reconciler.
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/burrito-league/internal/provider/strava"
	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/sheet"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// NotifyChannel is the Postgres channel a finished run is announced on.
const NotifyChannel = "poll_completed"

// successThreshold is the share of valid chapters that must return data for
// a run not to be flagged as rate limited.
const successThreshold = 0.5

// SheetSource returns the current chapter rows.
type SheetSource interface {
	Fetch(ctx context.Context) ([]sheet.Record, error)
}

// Fetcher returns the leaderboard for one segment, or nil when it has none.
type Fetcher interface {
	Fetch(ctx context.Context, segmentID int64) (*strava.Leaderboard, error)
}

// Store is the persistence a poll run needs.
type Store interface {
	snapshot.Store
	CreatePollRun(ctx context.Context, run snapshot.PollRun) error
	CountPollRuns(ctx context.Context) (int, error)
	NotifyPollCompleted(ctx context.Context, payload string) error
}

// Options selects the run variant.
type Options struct {
	Source snapshot.Source
	// Force admits every candidate with data regardless of history.
	Force bool
}

// Result is returned by Run and rendered by the cron endpoint.
type Result struct {
	PollRunID          uuid.UUID     `json:"pollRunId"`
	TotalChapters      int           `json:"totalChapters"`
	ValidChapters      int           `json:"validChapters"`
	SuccessfulChapters int           `json:"successfulChapters"`
	SnapshotsInserted  int           `json:"snapshotsInserted"`
	SnapshotsSkipped   int           `json:"snapshotsSkipped"`
	SnapshotsNoData    int           `json:"snapshotsNoData"`
	WasRateLimited     bool          `json:"wasRateLimited"`
	Duration           time.Duration `json:"-"`
}

// DurationMs is the run duration in whole milliseconds.
func (r *Result) DurationMs() int64 { return r.Duration.Milliseconds() }

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf("chapters=%d valid=%d successful=%d inserted=%d skipped=%d rate_limited=%v duration=%s",
		r.TotalChapters, r.ValidChapters, r.SuccessfulChapters,
		r.SnapshotsInserted, r.SnapshotsSkipped, r.WasRateLimited, r.Duration.Round(time.Millisecond))
}

// Orchestrator owns the poll run lifecycle.
type Orchestrator struct {
	sheet      SheetSource
	resolver   *segments.Resolver
	fetcher    Fetcher
	store      Store
	reconciler *snapshot.Reconciler
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an orchestrator.
func New(src SheetSource, resolver *segments.Resolver, fetcher Fetcher, store Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sheet:      src,
		resolver:   resolver,
		fetcher:    fetcher,
		store:      store,
		reconciler: snapshot.NewReconciler(store, logger),
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one pass. Upstream fetch failures only reduce the number of
// successful chapters; sheet and persistence failures are returned.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := o.now()
	if !opts.Source.Valid() {
		return nil, fmt.Errorf("invalid poll source %q", opts.Source)
	}

	records, err := o.sheet.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	chapters := o.resolver.BuildChapters(records)

	candidates, successful, sawRateLimit := o.collect(ctx, chapters)
	valid := len(candidates)

	result := &Result{
		TotalChapters:      len(chapters),
		ValidChapters:      valid,
		SuccessfulChapters: successful,
		WasRateLimited: sawRateLimit ||
			(valid > 0 && float64(successful) < float64(valid)*successThreshold),
	}

	o.logger.Info("Leaderboards fetched",
		"successful", successful,
		"valid", valid,
		"rate_limited", result.WasRateLimited)

	run := snapshot.PollRun{
		ID:                 uuid.New(),
		PolledAt:           o.now().UTC(),
		ChaptersPolled:     valid,
		ChaptersSuccessful: successful,
		WasRateLimited:     result.WasRateLimited,
		Source:             opts.Source,
	}
	if err := o.store.CreatePollRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create poll run: %w", err)
	}
	result.PollRunID = run.ID

	rec, err := o.reconciler.Reconcile(ctx, run.ID, candidates, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("reconcile poll run %s: %w", run.ID, err)
	}
	result.SnapshotsInserted = rec.Inserted
	result.SnapshotsSkipped = rec.Skipped + rec.NoData
	result.SnapshotsNoData = rec.NoData

	o.notify(ctx, run, rec)

	result.Duration = o.now().Sub(start)
	o.logger.Info("Poll run complete",
		"poll_run_id", run.ID,
		"source", opts.Source,
		"force", opts.Force,
		"summary", result.Summary())
	return result, nil
}

// collect fetches every valid chapter in order. After the first rate-limit
// response the remaining chapters are not requested in this pass.
func (o *Orchestrator) collect(ctx context.Context, chapters []segments.Chapter) ([]snapshot.Snapshot, int, bool) {
	var (
		candidates  []snapshot.Snapshot
		successful  int
		rateLimited bool
	)
	for _, ch := range chapters {
		if !ch.Valid() {
			continue
		}
		cand := snapshot.Snapshot{
			SegmentID:       ch.SegmentID,
			City:            ch.City,
			State:           ch.State,
			Country:         ch.Country,
			DisplayLocation: ch.DisplayLocation,
		}

		if !rateLimited {
			lb, err := o.fetcher.Fetch(ctx, ch.SegmentID)
			switch {
			case errors.Is(err, strava.ErrRateLimited):
				rateLimited = true
				o.logger.Warn("Rate limited, skipping remaining chapters",
					"segment_id", ch.SegmentID, "location", ch.DisplayLocation)
			case err != nil:
				o.logger.Warn("Leaderboard fetch failed",
					"segment_id", ch.SegmentID, "location", ch.DisplayLocation, "error", err)
			case lb != nil:
				successful++
				cand.TotalEfforts = lb.TotalEfforts
				cand.TotalAthletes = lb.TotalAthletes
				cand.TotalDistance = lb.TotalDistance
				cand.Male = lb.Male
				cand.Female = lb.Female
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates, successful, rateLimited
}

// completedEvent is the NOTIFY payload for a finished run.
type completedEvent struct {
	PollRunID string `json:"poll_run_id"`
	Source    string `json:"source"`
	Inserted  int    `json:"inserted"`
	Timestamp int64  `json:"ts"`
}

func (o *Orchestrator) notify(ctx context.Context, run snapshot.PollRun, rec *snapshot.Result) {
	payload, err := json.Marshal(completedEvent{
		PollRunID: run.ID.String(),
		Source:    string(run.Source),
		Inserted:  rec.Inserted,
		Timestamp: run.PolledAt.Unix(),
	})
	if err != nil {
		return
	}
	if err := o.store.NotifyPollCompleted(ctx, string(payload)); err != nil {
		o.logger.Warn("Failed to notify poll completion", "poll_run_id", run.ID, "error", err)
	}
}

// BootstrapIfEmpty runs one build-sourced pass when no poll run has ever
// been recorded. Reports whether a run happened.
func (o *Orchestrator) BootstrapIfEmpty(ctx context.Context) (bool, error) {
	n, err := o.store.CountPollRuns(ctx)
	if err != nil {
		return false, fmt.Errorf("count poll runs: %w", err)
	}
	if n > 0 {
		o.logger.Debug("Bootstrap skipped, poll runs exist", "count", n)
		return false, nil
	}

	o.logger.Info("No poll runs found, running initial poll")
	if _, err := o.Run(ctx, Options{Source: snapshot.SourceBuild}); err != nil {
		return false, err
	}
	return true, nil
}
