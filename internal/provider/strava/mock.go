package strava

import (
	"context"

	"github.com/albapepper/burrito-league/internal/snapshot"
)

// MockClient returns fixed leaderboards for local development without
// Strava credentials.
type MockClient struct{}

// Fetch returns the same leaderboard for every segment.
func (MockClient) Fetch(_ context.Context, segmentID int64) (*Leaderboard, error) {
	return &Leaderboard{
		SegmentID:     segmentID,
		TotalEfforts:  1234,
		TotalAthletes: 567,
		TotalDistance: "890 mi",
		Male:          snapshot.Leader{Name: "Test Runner M", Efforts: 42},
		Female:        snapshot.Leader{Name: "Test Runner F", Efforts: 38},
	}, nil
}
