// Package store is the Postgres implementation of the persistence interfaces
// used by the poller, the geocoder and the dashboard. Reads go through the
// prepared statements registered in package db; batch writes use COPY.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/burrito-league/internal/config"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// Store wraps a pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ---------------------------------------------------------------------------
// Poll runs
// ---------------------------------------------------------------------------

// CreatePollRun inserts the audit record for a run.
func (s *Store) CreatePollRun(ctx context.Context, run snapshot.PollRun) error {
	_, err := s.pool.Exec(ctx, "insert_poll_run",
		run.ID, run.PolledAt, run.ChaptersPolled, run.ChaptersSuccessful,
		run.WasRateLimited, string(run.Source))
	if err != nil {
		return fmt.Errorf("insert poll run: %w", err)
	}
	return nil
}

// LatestPollRun returns the newest run, or nil when none exist.
func (s *Store) LatestPollRun(ctx context.Context) (*snapshot.PollRun, error) {
	var run snapshot.PollRun
	var source string
	err := s.pool.QueryRow(ctx, "latest_poll_run").Scan(
		&run.ID, &run.PolledAt, &run.ChaptersPolled, &run.ChaptersSuccessful,
		&run.WasRateLimited, &source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest poll run: %w", err)
	}
	run.Source = snapshot.Source(source)
	return &run, nil
}

// CountPollRuns returns the number of recorded runs.
func (s *Store) CountPollRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "count_poll_runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count poll runs: %w", err)
	}
	return n, nil
}

// NotifyPollCompleted announces a finished run to listeners.
func (s *Store) NotifyPollCompleted(ctx context.Context, payload string) error {
	if _, err := s.pool.Exec(ctx, "notify_poll_completed", payload); err != nil {
		return fmt.Errorf("notify %s: %w", "poll_completed", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// LatestSnapshots returns the newest snapshot for each requested segment.
func (s *Store) LatestSnapshots(ctx context.Context, segmentIDs []int64) (map[int64]snapshot.Snapshot, error) {
	out := make(map[int64]snapshot.Snapshot, len(segmentIDs))
	if len(segmentIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, "latest_snapshots_for_segments", segmentIDs)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	list, err := collectSnapshots(rows)
	if err != nil {
		return nil, err
	}
	for _, snap := range list {
		out[snap.SegmentID] = snap
	}
	return out, nil
}

// RecentSnapshots returns up to limit snapshots across all segments, newest
// first.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]snapshot.Snapshot, error) {
	rows, err := s.pool.Query(ctx, "recent_snapshots", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// SegmentHistory returns up to limit snapshots of one segment, newest first.
func (s *Store) SegmentHistory(ctx context.Context, segmentID int64, limit int) ([]snapshot.Snapshot, error) {
	rows, err := s.pool.Query(ctx, "segment_history", segmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query segment history: %w", err)
	}
	return collectSnapshots(rows)
}

// InsertSnapshots writes an admitted batch in one transaction.
func (s *Store) InsertSnapshots(ctx context.Context, snaps []snapshot.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{config.SegmentSnapshotsTable},
		[]string{
			"id", "poll_run_id", "segment_id", "city", "state", "country", "display_location",
			"total_efforts", "total_athletes", "total_distance",
			"male_leader_name", "male_leader_efforts", "male_leader_pic",
			"female_leader_name", "female_leader_efforts", "female_leader_pic",
			"polled_at",
		},
		pgx.CopyFromSlice(len(snaps), func(i int) ([]any, error) {
			sn := snaps[i]
			return []any{
				sn.ID, sn.PollRunID, sn.SegmentID, sn.City, sn.State, sn.Country, sn.DisplayLocation,
				sn.TotalEfforts, sn.TotalAthletes, sn.TotalDistance,
				sn.Male.Name, sn.Male.Efforts, sn.Male.ProfilePic,
				sn.Female.Name, sn.Female.Efforts, sn.Female.ProfilePic,
				sn.PolledAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy snapshots: %w", err)
	}
	if int(n) != len(snaps) {
		return fmt.Errorf("copy snapshots: wrote %d of %d rows", n, len(snaps))
	}
	return tx.Commit(ctx)
}

// InsertPollDetails writes the diagnostic rows of a run.
func (s *Store) InsertPollDetails(ctx context.Context, details []snapshot.PollDetail) error {
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{config.PollDetailsTable},
		[]string{
			"id", "poll_run_id", "segment_id", "display_location",
			"api_total_efforts",
			"api_male_leader_name", "api_male_leader_efforts",
			"api_female_leader_name", "api_female_leader_efforts",
			"existing_total_efforts", "existing_male_leader_name", "existing_female_leader_name",
			"action", "reason",
		},
		pgx.CopyFromSlice(len(details), func(i int) ([]any, error) {
			d := details[i]
			return []any{
				d.ID, d.PollRunID, d.SegmentID, d.DisplayLocation,
				d.APITotalEfforts,
				d.APIMale.Name, d.APIMale.Efforts,
				d.APIFemale.Name, d.APIFemale.Efforts,
				d.ExistingTotalEfforts, d.ExistingMaleName, d.ExistingFemaleName,
				string(d.Action), d.Reason,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy poll details: %w", err)
	}
	return nil
}

func collectSnapshots(rows pgx.Rows) ([]snapshot.Snapshot, error) {
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		var sn snapshot.Snapshot
		if err := rows.Scan(
			&sn.ID, &sn.PollRunID, &sn.SegmentID, &sn.City, &sn.State, &sn.Country, &sn.DisplayLocation,
			&sn.TotalEfforts, &sn.TotalAthletes, &sn.TotalDistance,
			&sn.Male.Name, &sn.Male.Efforts, &sn.Male.ProfilePic,
			&sn.Female.Name, &sn.Female.Efforts, &sn.Female.ProfilePic,
			&sn.PolledAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Coordinates
// ---------------------------------------------------------------------------

// Coordinates returns every stored chapter coordinate.
func (s *Store) Coordinates(ctx context.Context) ([]geocode.Coordinate, error) {
	rows, err := s.pool.Query(ctx, "all_coordinates")
	if err != nil {
		return nil, fmt.Errorf("query coordinates: %w", err)
	}
	defer rows.Close()

	var out []geocode.Coordinate
	for rows.Next() {
		var c geocode.Coordinate
		var source string
		if err := rows.Scan(&c.City, &c.State, &c.Country, &c.Lat, &c.Lng, &source); err != nil {
			return nil, fmt.Errorf("scan coordinate: %w", err)
		}
		c.Source = geocode.Source(source)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCoordinate stores or replaces a city's coordinate.
func (s *Store) UpsertCoordinate(ctx context.Context, c geocode.Coordinate) error {
	source := c.Source
	if source != geocode.SourceManual {
		source = geocode.SourceGeocoded
	}
	_, err := s.pool.Exec(ctx, "upsert_coordinate", c.City, c.State, c.Country, c.Lat, c.Lng, string(source))
	if err != nil {
		return fmt.Errorf("upsert coordinate %s: %w", c.City, err)
	}
	return nil
}
