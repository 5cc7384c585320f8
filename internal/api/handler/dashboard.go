package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/burrito-league/internal/api/respond"
	"github.com/albapepper/burrito-league/internal/cache"
	"github.com/albapepper/burrito-league/internal/dashboard"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/provider/strava"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

const (
	chaptersKey    = cache.PrefixDashboard + "chapters"
	statsKey       = cache.PrefixDashboard + "stats"
	pollRunKey     = cache.PrefixDashboard + "poll-run"
	coordinatesKey = "coordinates"
)

func segmentKey(id int64) string { return fmt.Sprintf("segment:%d", id) }

// serveCached writes a cached payload and reports whether it did.
func serveCached(w http.ResponseWriter, r *http.Request, c *cache.Cache, key string, ttl time.Duration) bool {
	data, etag, ok := c.Get(key)
	if !ok {
		return false
	}
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return true
	}
	respond.WriteJSON(w, data, etag, ttl, respond.Hit)
	return true
}

// writeFresh marshals v, caches it when store is set and writes it.
func (h *Handler) writeFresh(w http.ResponseWriter, r *http.Request, key string, v interface{}, ttl time.Duration, store bool) {
	data, err := json.Marshal(v)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode response")
		return
	}
	var etag string
	if store {
		etag = h.cache.Set(key, data, ttl)
	} else {
		etag = cache.ComputeETag(data)
	}
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, ttl, respond.Miss)
}

type chaptersResponse struct {
	Tier        dashboard.Tier          `json:"tier"`
	LastUpdated time.Time               `json:"lastUpdated"`
	Count       int                     `json:"count"`
	Chapters    []dashboard.ChapterView `json:"chapters"`
}

type statsResponse struct {
	Tier        dashboard.Tier `json:"tier"`
	LastUpdated time.Time      `json:"lastUpdated"`
	dashboard.GlobalStats
}

// Chapters returns every chapter card in display order.
// @Summary List chapters
// @Description Chapter cards with their latest reading and leader deltas, conference cities first. Falls back to the last good payload and then to built-in data when the database is unavailable.
// @Tags dashboard
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Success 304 "Not Modified"
// @Router /api/v1/chapters [get]
func (h *Handler) Chapters(w http.ResponseWriter, r *http.Request) {
	if serveCached(w, r, h.cache, chaptersKey, cache.TTLDashboard) {
		return
	}
	d := h.loadDashboard(r)
	h.writeFresh(w, r, chaptersKey, chaptersResponse{
		Tier:        d.Tier,
		LastUpdated: d.LastUpdated,
		Count:       len(d.Chapters),
		Chapters:    d.Chapters,
	}, cache.TTLDashboard, d.Tier == dashboard.TierFresh)
}

// Stats returns the league-wide totals.
// @Summary Global stats
// @Description Total chapters, efforts, athletes and miles.
// @Tags dashboard
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Success 304 "Not Modified"
// @Router /api/v1/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if serveCached(w, r, h.cache, statsKey, cache.TTLDashboard) {
		return
	}
	d := h.loadDashboard(r)
	h.writeFresh(w, r, statsKey, statsResponse{
		Tier:        d.Tier,
		LastUpdated: d.LastUpdated,
		GlobalStats: d.Stats,
	}, cache.TTLDashboard, d.Tier == dashboard.TierFresh)
}

func (h *Handler) loadDashboard(r *http.Request) *dashboard.Dashboard {
	if h.dashboard == nil {
		fb, err := dashboard.LoadFallback()
		if err != nil {
			h.logger.Error("Failed to load fallback dashboard", "error", err)
			return &dashboard.Dashboard{Tier: dashboard.TierFallback}
		}
		return fb.Dashboard()
	}
	return h.dashboard.Load(r.Context())
}

// Coordinates returns map coordinates for every known city.
// @Summary Chapter coordinates
// @Description Built-in coordinates merged with geocoded and manual rows from the database.
// @Tags dashboard
// @Produce json
// @Success 200 {array} geocode.Coordinate
// @Router /api/v1/coordinates [get]
func (h *Handler) Coordinates(w http.ResponseWriter, r *http.Request) {
	if serveCached(w, r, h.cache, coordinatesKey, cache.TTLCoordinates) {
		return
	}

	var stored []geocode.Coordinate
	fromStore := false
	if h.store != nil {
		var err error
		stored, err = h.store.Coordinates(r.Context())
		if err != nil {
			h.logger.Warn("Serving built-in coordinates only", "error", err)
		} else {
			fromStore = true
		}
	}
	h.writeFresh(w, r, coordinatesKey, geocode.Merge(h.known, stored), cache.TTLCoordinates, fromStore)
}

// LatestPollRun returns the most recent poll run.
// @Summary Latest poll run
// @Tags dashboard
// @Produce json
// @Success 200 {object} snapshot.PollRun
// @Failure 404 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/poll-runs/latest [get]
func (h *Handler) LatestPollRun(w http.ResponseWriter, r *http.Request) {
	if serveCached(w, r, h.cache, pollRunKey, cache.TTLPollRun) {
		return
	}
	if h.store == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database not configured")
		return
	}
	run, err := h.store.LatestPollRun(r.Context())
	if err != nil {
		h.logger.Error("Failed to load latest poll run", "error", err)
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_ERROR", "Failed to load poll run")
		return
	}
	if run == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No poll runs recorded")
		return
	}
	h.writeFresh(w, r, pollRunKey, run, cache.TTLPollRun, true)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SegmentHistory returns the recorded snapshots of one segment.
// @Summary Segment snapshot history
// @Description Admitted snapshots of a segment, newest first.
// @Tags dashboard
// @Produce json
// @Param segmentID path int true "Strava segment ID"
// @Param limit query int false "Maximum snapshots (default 50, max 500)"
// @Success 200 {array} snapshot.Snapshot
// @Failure 400 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/segments/{segmentID}/history [get]
func (h *Handler) SegmentHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "segmentID must be a positive integer")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	key := fmt.Sprintf("%shistory:%d:%d", cache.PrefixDashboard, id, limit)
	if serveCached(w, r, h.cache, key, cache.TTLDashboard) {
		return
	}
	if h.store == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database not configured")
		return
	}
	history, err := h.store.SegmentHistory(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("Failed to load segment history", "segment_id", id, "error", err)
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_ERROR", "Failed to load segment history")
		return
	}
	if history == nil {
		history = []snapshot.Snapshot{}
	}
	h.writeFresh(w, r, key, history, cache.TTLDashboard, true)
}

// Segment fetches one segment's leaderboard live from Strava.
// @Summary Live segment leaderboard
// @Description Reads both local-legend categories for a segment. Cached for 15 minutes; a recent cached reading is served when Strava fails.
// @Tags dashboard
// @Produce json
// @Param segmentID path int true "Strava segment ID"
// @Success 200 {object} strava.Leaderboard
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/segments/{segmentID} [get]
func (h *Handler) Segment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "segmentID must be a positive integer")
		return
	}
	key := segmentKey(id)
	if serveCached(w, r, h.cache, key, cache.TTLSegment) {
		return
	}
	if h.fetcher == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Strava client not configured")
		return
	}

	lb, err := h.fetcher.Fetch(r.Context(), id)
	if err != nil {
		if data, etag, ok := h.cache.GetStale(key); ok {
			h.logger.Warn("Serving stale segment", "segment_id", id, "error", err)
			respond.WriteJSON(w, data, etag, cache.TTLSegment, respond.Stale)
			return
		}
		h.logger.Error("Segment fetch failed", "segment_id", id, "error", err)
		if errors.Is(err, strava.ErrRateLimited) {
			w.Header().Set("Retry-After", "900")
			respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "RATE_LIMITED", "Strava rate limit reached", err.Error())
			return
		}
		respond.WriteErrorDetail(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to fetch segment", err.Error())
		return
	}
	if lb == nil {
		respond.WriteError(w, http.StatusNotFound, "NO_DATA", "Strava has no local legend data for this segment")
		return
	}

	data, err := json.Marshal(lb)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode response")
		return
	}
	etag := h.cache.SetStale(key, data, cache.TTLSegment, cache.StaleSegment)
	respond.WriteJSON(w, data, etag, cache.TTLSegment, respond.Miss)
}

// DebugChapters explains how the sheet and the snapshot log line up.
// @Summary Chapter diagnostics
// @Description Chapters missing a segment, segments with no chapter, chapters with no snapshot, and name suggestions for unresolved rows.
// @Tags debug
// @Produce json
// @Success 200 {object} dashboard.Diagnostics
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/debug/chapters [get]
func (h *Handler) DebugChapters(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Dashboard not configured")
		return
	}
	diag, err := h.dashboard.Diagnose(r.Context())
	if err != nil {
		h.logger.Error("Diagnostics failed", "error", err)
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "DIAGNOSTICS_FAILED", "Failed to build diagnostics", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, diag)
}
