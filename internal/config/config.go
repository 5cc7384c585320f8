// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Table names, matching internal/db/schema.sql.
const (
	PollRunsTable           = "poll_runs"
	SegmentSnapshotsTable   = "segment_snapshots"
	PollDetailsTable        = "poll_details"
	ChapterCoordinatesTable = "chapter_coordinates"
)

// Upstream defaults.
const (
	DefaultSheetCSVURL   = "https://docs.google.com/spreadsheets/d/14IryBvhyVun3fXbHCdDD6q6kWe5JwoqIj2TeRbYptxo/gviz/tq?tqx=out:csv"
	DefaultStravaAPIURL  = "https://www.strava.com/api/v3"
	DefaultStravaAuthURL = "https://www.strava.com/oauth/token"
	DefaultNominatimURL  = "https://nominatim.openstreetmap.org"
	DefaultUserAgent     = "BurritoLeague/1.0 (https://burrito.run)"
)

// Config is the process configuration, read once at startup.
type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting (inbound)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cron endpoints
	CronSecret  string
	PollTimeout time.Duration

	// Sheet
	SheetCSVURL string

	// Strava
	StravaClientID          string
	StravaClientSecret      string
	StravaRefreshToken      string
	StravaAPIBaseURL        string
	StravaTokenURL          string
	StravaRequestsPerMinute int // 0 = unlimited
	UseMockData             bool

	// Segment tables override (YAML). Empty = embedded defaults.
	SegmentTablesFile string

	// Geocoding
	NominatimBaseURL string
	GeocodeUserAgent string

	// Background schedules. Zero disables.
	PollInterval     time.Duration
	GeocodeInterval  time.Duration
	BootstrapOnStart bool

	// Error tracking
	SentryDSN string

	// Cache
	CacheEnabled bool
}

// Load reads configuration from the environment. DATABASE_URL (or the
// Supabase alias) is the only required variable.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("SUPABASE_DB_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or SUPABASE_DB_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  envDuration("DB_POOL_MAX_LIFE_MINUTES", 30, time.Minute),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"https://burrito.run",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", 60, time.Second),

		CronSecret:  envOr("CRON_SECRET", ""),
		PollTimeout: envDuration("POLL_TIMEOUT_SECONDS", 300, time.Second),

		SheetCSVURL: envOr("SHEET_CSV_URL", DefaultSheetCSVURL),

		StravaClientID:          envOr("STRAVA_CLIENT_ID", ""),
		StravaClientSecret:      envOr("STRAVA_CLIENT_SECRET", ""),
		StravaRefreshToken:      envOr("STRAVA_REFRESH_TOKEN", ""),
		StravaAPIBaseURL:        envOr("STRAVA_API_BASE_URL", DefaultStravaAPIURL),
		StravaTokenURL:          envOr("STRAVA_TOKEN_URL", DefaultStravaAuthURL),
		StravaRequestsPerMinute: envInt("STRAVA_REQUESTS_PER_MINUTE", 0),
		UseMockData:             envBool("USE_MOCK_DATA", false),

		SegmentTablesFile: envOr("SEGMENT_TABLES_FILE", ""),

		NominatimBaseURL: envOr("NOMINATIM_BASE_URL", DefaultNominatimURL),
		GeocodeUserAgent: envOr("GEOCODE_USER_AGENT", DefaultUserAgent),

		PollInterval:     envDuration("POLL_INTERVAL_MINUTES", 0, time.Minute),
		GeocodeInterval:  envDuration("GEOCODE_INTERVAL_MINUTES", 0, time.Minute),
		BootstrapOnStart: envBool("BOOTSTRAP_ON_START", true),

		SentryDSN: envOr("SENTRY_DSN", ""),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.PollTimeout <= 0:
		return fmt.Errorf("POLL_TIMEOUT_SECONDS must be positive")
	case c.RateLimitEnabled && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0):
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	case c.DBPoolMaxConns < c.DBPoolMinConns:
		return fmt.Errorf("DB_POOL_MAX_CONNS (%d) is below DB_POOL_MIN_CONNS (%d)", c.DBPoolMaxConns, c.DBPoolMinConns)
	case c.PollInterval < 0 || c.GeocodeInterval < 0:
		return fmt.Errorf("background intervals cannot be negative")
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasStravaCredentials reports whether a refresh-token exchange is possible.
func (c *Config) HasStravaCredentials() bool {
	return c.StravaClientID != "" && c.StravaClientSecret != "" && c.StravaRefreshToken != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(envInt(key, fallback)) * unit
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string, fallback []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
