package strava

import (
	"context"
	"log/slog"

	"github.com/albapepper/burrito-league/internal/config"
)

// Fetcher is implemented by Client and MockClient.
type Fetcher interface {
	Fetch(ctx context.Context, segmentID int64) (*Leaderboard, error)
}

// FromConfig returns the live client, or the mock when USE_MOCK_DATA is set
// or the refresh-token credentials are incomplete.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) Fetcher {
	if cfg.UseMockData {
		logger.Info("Using mock Strava data (USE_MOCK_DATA)")
		return MockClient{}
	}
	if !cfg.HasStravaCredentials() {
		logger.Warn("Strava credentials incomplete, using mock data")
		return MockClient{}
	}
	tokens := NewTokenSource(ctx, TokenConfig{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RefreshToken: cfg.StravaRefreshToken,
		TokenURL:     cfg.StravaTokenURL,
	})
	return NewClient(cfg.StravaAPIBaseURL, tokens, cfg.StravaRequestsPerMinute, logger)
}
