// Package handler provides HTTP handlers for all API endpoints.
// Dashboard reads are served from the in-memory cache when possible and
// rebuilt from the dashboard service on a miss; cron endpoints run a pass
// and report its result.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/burrito-league/internal/api/respond"
	"github.com/albapepper/burrito-league/internal/cache"
	"github.com/albapepper/burrito-league/internal/config"
	"github.com/albapepper/burrito-league/internal/dashboard"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/poll"
	"github.com/albapepper/burrito-league/internal/provider/strava"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// Poller runs one poll pass.
type Poller interface {
	Run(ctx context.Context, opts poll.Options) (*poll.Result, error)
}

// PrePoller runs one geocoding pass.
type PrePoller interface {
	Run(ctx context.Context) (*geocode.PrePollResult, error)
}

// DashboardService builds the read model.
type DashboardService interface {
	Load(ctx context.Context) *dashboard.Dashboard
	Diagnose(ctx context.Context) (*dashboard.Diagnostics, error)
}

// Store is the direct persistence the handlers read.
type Store interface {
	LatestPollRun(ctx context.Context) (*snapshot.PollRun, error)
	Coordinates(ctx context.Context) ([]geocode.Coordinate, error)
	SegmentHistory(ctx context.Context, segmentID int64, limit int) ([]snapshot.Snapshot, error)
}

// SegmentFetcher fetches one live leaderboard.
type SegmentFetcher interface {
	Fetch(ctx context.Context, segmentID int64) (*strava.Leaderboard, error)
}

// HealthChecker verifies the database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the handler dependencies. Nil services disable their routes'
// functionality with a 503.
type Deps struct {
	Config    *config.Config
	Cache     *cache.Cache
	Store     Store
	Health    HealthChecker
	Dashboard DashboardService
	Poller    Poller
	PrePoller PrePoller
	Fetcher   SegmentFetcher
	Logger    *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	cfg       *config.Config
	cache     *cache.Cache
	store     Store
	health    HealthChecker
	dashboard DashboardService
	poller    Poller
	prePoller PrePoller
	fetcher   SegmentFetcher
	known     []geocode.Coordinate
	logger    *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	known, err := geocode.Known()
	if err != nil {
		logger.Error("Failed to load known coordinates", "error", err)
	}
	return &Handler{
		cfg:       d.Config,
		cache:     d.Cache,
		store:     d.Store,
		health:    d.Health,
		dashboard: d.Dashboard,
		poller:    d.Poller,
		prePoller: d.PrePoller,
		fetcher:   d.Fetcher,
		known:     known,
		logger:    logger,
	}
}

// InvalidateDashboard drops every cached payload derived from snapshots.
func (h *Handler) InvalidateDashboard() int {
	return h.cache.DeletePrefix(cache.PrefixDashboard)
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Burrito League API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.health == nil || h.health.HealthCheck(r.Context()) != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
