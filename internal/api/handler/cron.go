package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/albapepper/burrito-league/internal/api/respond"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/poll"
	"github.com/albapepper/burrito-league/internal/sentry"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// pollResponse is the cron poll payload.
type pollResponse struct {
	Success bool `json:"success"`
	*poll.Result
	DurationMs int64 `json:"durationMs"`
}

// runContext detaches a pass from the request so a client disconnect does
// not abort it midway.
func (h *Handler) runContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.Context())
	if h.cfg != nil && h.cfg.PollTimeout > 0 {
		return context.WithTimeout(ctx, h.cfg.PollTimeout)
	}
	return context.WithCancel(ctx)
}

// PollStrava runs one poll pass.
// @Summary Poll Strava leaderboards
// @Description Fetches every resolved chapter's leaderboard and records the admitted snapshots. Requires the cron bearer token when one is configured.
// @Tags cron
// @Produce json
// @Param force query bool false "Admit every snapshot with data regardless of history"
// @Param source query string false "Run source" Enums(scheduled, manual)
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/cron/poll-strava [get]
// @Router /api/cron/poll-strava [post]
func (h *Handler) PollStrava(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		respond.WriteFailure(w, http.StatusServiceUnavailable, "Poller not configured")
		return
	}

	opts := poll.Options{Source: snapshot.SourceScheduled}
	if s := snapshot.Source(r.URL.Query().Get("source")); s != "" {
		if !s.Valid() {
			respond.WriteFailure(w, http.StatusBadRequest, "invalid source "+strconv.Quote(string(s)))
			return
		}
		opts.Source = s
	}
	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force {
		opts.Force = true
		opts.Source = snapshot.SourceManual
	}

	ctx, cancel := h.runContext(r)
	defer cancel()

	res, err := h.poller.Run(ctx, opts)
	if err != nil {
		h.logger.Error("Poll failed", "source", opts.Source, "error", err)
		sentry.CaptureException(err, map[string]string{"op": "poll", "source": string(opts.Source)}, h.logger)
		respond.WriteFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.InvalidateDashboard()
	respond.WriteJSONObject(w, http.StatusOK, pollResponse{
		Success:    true,
		Result:     res,
		DurationMs: res.DurationMs(),
	})
}

// PrePoll geocodes sheet cities that have no coordinates yet.
// @Summary Geocode new chapter cities
// @Description Scans the chapter sheet for cities without coordinates and geocodes them. Requires the cron bearer token when one is configured.
// @Tags cron
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/cron/pre-poll [get]
// @Router /api/cron/pre-poll [post]
func (h *Handler) PrePoll(w http.ResponseWriter, r *http.Request) {
	if h.prePoller == nil {
		respond.WriteFailure(w, http.StatusServiceUnavailable, "Geocoder not configured")
		return
	}

	ctx, cancel := h.runContext(r)
	defer cancel()

	res, err := h.prePoller.Run(ctx)
	if err != nil {
		h.logger.Error("Pre-poll failed", "error", err)
		sentry.CaptureException(err, map[string]string{"op": "pre-poll"}, h.logger)
		respond.WriteFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.Geocoded > 0 {
		h.cache.Delete(coordinatesKey)
	}
	respond.WriteJSONObject(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*geocode.PrePollResult
	}{true, res})
}
