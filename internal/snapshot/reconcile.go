package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence the reconciler needs.
type Store interface {
	// LatestSnapshots returns the most recent snapshot per segment id.
	// Segments with no history are absent from the map.
	LatestSnapshots(ctx context.Context, segmentIDs []int64) (map[int64]Snapshot, error)
	InsertSnapshots(ctx context.Context, snapshots []Snapshot) error
	InsertPollDetails(ctx context.Context, details []PollDetail) error
}

// Result summarizes one reconciliation batch.
type Result struct {
	Inserted int
	Skipped  int
	NoData   int
	Details  []PollDetail
}

// Summary returns a human-readable summary of the batch.
func (r *Result) Summary() string {
	return fmt.Sprintf("inserted=%d skipped=%d no_data=%d", r.Inserted, r.Skipped, r.NoData)
}

// Reconciler decides which candidates of a poll run enter the snapshot log.
type Reconciler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler backed by store.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// Reconcile runs admission for a batch of candidates belonging to runID.
// With force set, every candidate with data is admitted regardless of
// history. Admitted snapshots are written as one batch; a detail row is
// written for every candidate including dropped duplicates.
func (r *Reconciler) Reconcile(ctx context.Context, runID uuid.UUID, candidates []Snapshot, force bool) (*Result, error) {
	ordered := make([]Snapshot, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TotalEfforts > ordered[j].TotalEfforts
	})

	ids := make([]int64, 0, len(ordered))
	seen := make(map[int64]bool, len(ordered))
	for _, c := range ordered {
		if !seen[c.SegmentID] {
			seen[c.SegmentID] = true
			ids = append(ids, c.SegmentID)
		}
	}

	var existing map[int64]Snapshot
	if !force {
		var err error
		existing, err = r.store.LatestSnapshots(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load latest snapshots: %w", err)
		}
	}

	polledAt := r.now().UTC()
	result := &Result{}
	admitted := make([]Snapshot, 0, len(ordered))
	claimed := make(map[int64]bool, len(ordered))

	for _, c := range ordered {
		var prev *Snapshot
		if s, ok := existing[c.SegmentID]; ok {
			prev = &s
		}

		var d Decision
		switch {
		case claimed[c.SegmentID]:
			d = Decision{ActionSkipped, "duplicate segment in batch"}
		case force:
			d = DecideForce(c)
		default:
			d = Decide(c, prev)
		}

		switch d.Action {
		case ActionInserted:
			claimed[c.SegmentID] = true
			c.ID = uuid.New()
			c.PollRunID = runID
			c.PolledAt = polledAt
			admitted = append(admitted, c)
			result.Inserted++
		case ActionSkipped:
			result.Skipped++
		case ActionNoData:
			result.NoData++
		}

		result.Details = append(result.Details, newDetail(runID, c, prev, d))
		r.logger.Debug("Snapshot decision",
			"segment_id", c.SegmentID,
			"location", c.DisplayLocation,
			"action", d.Action,
			"reason", d.Reason)
	}

	if len(admitted) > 0 {
		if err := r.store.InsertSnapshots(ctx, admitted); err != nil {
			return nil, fmt.Errorf("insert snapshots: %w", err)
		}
	}

	// Details are diagnostic only; a failure here does not undo the batch.
	if len(result.Details) > 0 {
		if err := r.store.InsertPollDetails(ctx, result.Details); err != nil {
			r.logger.Warn("Failed to record poll details", "poll_run_id", runID, "error", err)
		}
	}

	return result, nil
}

func newDetail(runID uuid.UUID, c Snapshot, prev *Snapshot, d Decision) PollDetail {
	detail := PollDetail{
		ID:              uuid.New(),
		PollRunID:       runID,
		SegmentID:       c.SegmentID,
		DisplayLocation: c.DisplayLocation,
		APITotalEfforts: c.TotalEfforts,
		APIMale:         c.Male,
		APIFemale:       c.Female,
		Action:          d.Action,
		Reason:          d.Reason,
	}
	if prev != nil {
		total := prev.TotalEfforts
		male := prev.Male.Name
		female := prev.Female.Name
		detail.ExistingTotalEfforts = &total
		detail.ExistingMaleName = &male
		detail.ExistingFemaleName = &female
	}
	return detail
}
