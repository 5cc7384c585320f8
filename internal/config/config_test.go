package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_DB_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/burrito")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultSheetCSVURL, cfg.SheetCSVURL)
	assert.Equal(t, DefaultStravaAPIURL, cfg.StravaAPIBaseURL)
	assert.Equal(t, DefaultStravaAuthURL, cfg.StravaTokenURL)
	assert.Equal(t, 0, cfg.StravaRequestsPerMinute)
	assert.Equal(t, time.Duration(0), cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.PollTimeout)
	assert.False(t, cfg.HasStravaCredentials())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/burrito")
	t.Setenv("STRAVA_CLIENT_ID", "123")
	t.Setenv("STRAVA_CLIENT_SECRET", "shh")
	t.Setenv("STRAVA_REFRESH_TOKEN", "rt")
	t.Setenv("POLL_INTERVAL_MINUTES", "15")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("USE_MOCK_DATA", "true")
	t.Setenv("API_PORT", "not-a-number")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.HasStravaCredentials())
	assert.Equal(t, 15*time.Minute, cfg.PollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.True(t, cfg.UseMockData)
	assert.Equal(t, 8000, cfg.APIPort)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero poll timeout", "POLL_TIMEOUT_SECONDS", "0"},
		{"zero rate limit", "RATE_LIMIT_REQUESTS", "0"},
		{"pool max below min", "DB_POOL_MAX_CONNS", "0"},
		{"negative poll interval", "POLL_INTERVAL_MINUTES", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/burrito")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRateLimitValuesIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/burrito")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimitEnabled)
}
