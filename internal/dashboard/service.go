package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/sheet"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// RecentLimit bounds how many snapshots one dashboard load reads.
const RecentLimit = 1000

// errNoPollRuns means nothing has been polled yet.
var errNoPollRuns = errors.New("no poll runs recorded")

// Store is the persistence the dashboard reads.
type Store interface {
	LatestPollRun(ctx context.Context) (*snapshot.PollRun, error)
	RecentSnapshots(ctx context.Context, limit int) ([]snapshot.Snapshot, error)
}

// SheetSource returns the current chapter rows.
type SheetSource interface {
	Fetch(ctx context.Context) ([]sheet.Record, error)
}

// Service serves the dashboard. A fresh read that fails falls back to the
// last good payload, and failing that to the embedded fallback data, so
// Load never returns an error.
type Service struct {
	store    Store
	sheet    SheetSource
	resolver *segments.Resolver
	fallback *Fallback
	logger   *slog.Logger

	mu   sync.RWMutex
	last *Dashboard
}

// NewService creates a dashboard service.
func NewService(store Store, src SheetSource, resolver *segments.Resolver, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fb, err := LoadFallback()
	if err != nil {
		return nil, err
	}
	return &Service{store: store, sheet: src, resolver: resolver, fallback: fb, logger: logger}, nil
}

// Fallback returns the embedded fallback data.
func (s *Service) Fallback() *Fallback { return s.fallback }

// Load returns the dashboard from the best available tier.
func (s *Service) Load(ctx context.Context) *Dashboard {
	d, err := s.loadFresh(ctx)
	if err == nil {
		s.mu.Lock()
		s.last = d
		s.mu.Unlock()
		return d
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		s.logger.Warn("Serving cached dashboard", "error", err)
		cached := *last
		cached.Tier = TierCached
		return &cached
	}

	s.logger.Warn("Serving fallback dashboard", "error", err)
	return s.fallback.Dashboard()
}

func (s *Service) loadFresh(ctx context.Context) (*Dashboard, error) {
	run, err := s.store.LatestPollRun(ctx)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errNoPollRuns
	}

	recent, err := s.store.RecentSnapshots(ctx, RecentLimit)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, fmt.Errorf("poll run %s has no snapshots", run.ID)
	}

	records, err := s.sheet.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	chapters := s.resolver.BuildChapters(records)

	views := Build(recent, chapters)
	s.logger.Debug("Dashboard loaded",
		"poll_run_id", run.ID,
		"chapters", len(views),
		"snapshots", len(recent))

	return &Dashboard{
		Tier:        TierFresh,
		PollRun:     run,
		LastUpdated: run.PolledAt,
		Chapters:    views,
		Stats:       Stats(views, s.fallback.Stats()),
	}, nil
}

// Diagnostics explains how snapshots and sheet chapters line up.
type Diagnostics struct {
	TotalSnapshots     int                   `json:"totalSnapshots"`
	UniqueSegments     int                   `json:"uniqueSegments"`
	SheetChapters      int                   `json:"sheetChapters"`
	ValidChapters      int                   `json:"validChapters"`
	NeedSegment        []segments.Chapter    `json:"needSegment"`
	OrphanSegments     []int64               `json:"orphanSegments"`
	MissingSnapshots   []segments.Chapter    `json:"missingSnapshots"`
	SegmentSuggestions []segments.Suggestion `json:"segmentSuggestions"`
}

// Diagnose compares the stored snapshots with the current sheet. Unlike
// Load it returns errors.
func (s *Service) Diagnose(ctx context.Context) (*Diagnostics, error) {
	recent, err := s.store.RecentSnapshots(ctx, RecentLimit)
	if err != nil {
		return nil, err
	}
	records, err := s.sheet.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	chapters := s.resolver.BuildChapters(records)

	stored := make(map[int64]bool)
	for _, sn := range recent {
		stored[sn.SegmentID] = true
	}

	d := &Diagnostics{
		TotalSnapshots:     len(recent),
		UniqueSegments:     len(stored),
		SheetChapters:      len(chapters),
		SegmentSuggestions: s.resolver.Suggest(chapters),
	}
	inSheet := make(map[int64]bool)
	for _, ch := range chapters {
		if !ch.Valid() {
			d.NeedSegment = append(d.NeedSegment, ch)
			continue
		}
		d.ValidChapters++
		inSheet[ch.SegmentID] = true
		if !stored[ch.SegmentID] {
			d.MissingSnapshots = append(d.MissingSnapshots, ch)
		}
	}
	for id := range stored {
		if !inSheet[id] {
			d.OrphanSegments = append(d.OrphanSegments, id)
		}
	}
	sort.Slice(d.OrphanSegments, func(i, j int) bool { return d.OrphanSegments[i] < d.OrphanSegments[j] })
	return d, nil
}
