// Package snapshot holds the append-only leaderboard log: the records a poll
// run writes, the rule deciding which fetched snapshots are admitted, and the
// leader deltas derived from history at read time.
package snapshot

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NoLeaderName is shown in place of an empty leader slot.
const NoLeaderName = "No leader yet"

// Leader is the local legend for one category of a segment. An empty Name
// means nobody holds the slot.
type Leader struct {
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
	Efforts    int    `json:"efforts"`
}

// Present reports whether the slot is held.
func (l Leader) Present() bool { return strings.TrimSpace(l.Name) != "" }

// DisplayName returns the name, or NoLeaderName for an empty slot.
func (l Leader) DisplayName() string {
	if !l.Present() {
		return NoLeaderName
	}
	return l.Name
}

// Snapshot is one accepted (or candidate) reading of a segment leaderboard.
type Snapshot struct {
	ID              uuid.UUID `json:"id"`
	PollRunID       uuid.UUID `json:"pollRunId"`
	SegmentID       int64     `json:"segmentId"`
	City            string    `json:"city"`
	State           string    `json:"state"`
	Country         string    `json:"country"`
	DisplayLocation string    `json:"displayLocation"`
	TotalEfforts    int       `json:"totalEfforts"`
	TotalAthletes   int       `json:"totalAthletes"`
	TotalDistance   string    `json:"totalDistance"`
	Male            Leader    `json:"maleLeader"`
	Female          Leader    `json:"femaleLeader"`
	PolledAt        time.Time `json:"polledAt"`
}

// HasData reports whether the snapshot carries anything worth keeping.
func (s Snapshot) HasData() bool {
	return s.TotalEfforts > 0 || s.Male.Present() || s.Female.Present()
}

// Source says what triggered a poll run.
type Source string

const (
	SourceScheduled Source = "scheduled"
	SourceManual    Source = "manual"
	SourceBuild     Source = "build"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceScheduled, SourceManual, SourceBuild:
		return true
	}
	return false
}

// PollRun is the audit record of one orchestration pass.
type PollRun struct {
	ID                 uuid.UUID `json:"id"`
	PolledAt           time.Time `json:"polledAt"`
	ChaptersPolled     int       `json:"chaptersPolled"`
	ChaptersSuccessful int       `json:"chaptersSuccessful"`
	WasRateLimited     bool      `json:"wasRateLimited"`
	Source             Source    `json:"source"`
}

// Action records what the reconciler did with a candidate.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionSkipped  Action = "skipped"
	ActionNoData   Action = "no_data"
)

// PollDetail is the diagnostic row written for every candidate of a run.
type PollDetail struct {
	ID              uuid.UUID `json:"id"`
	PollRunID       uuid.UUID `json:"pollRunId"`
	SegmentID       int64     `json:"segmentId"`
	DisplayLocation string    `json:"displayLocation"`

	APITotalEfforts int    `json:"apiTotalEfforts"`
	APIMale         Leader `json:"apiMaleLeader"`
	APIFemale       Leader `json:"apiFemaleLeader"`

	// Nil when the segment had no previous snapshot.
	ExistingTotalEfforts *int    `json:"existingTotalEfforts"`
	ExistingMaleName     *string `json:"existingMaleLeaderName"`
	ExistingFemaleName   *string `json:"existingFemaleLeaderName"`

	Action Action `json:"action"`
	Reason string `json:"reason"`
}
