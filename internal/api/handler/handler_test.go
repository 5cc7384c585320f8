package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/burrito-league/internal/cache"
	"github.com/albapepper/burrito-league/internal/config"
	"github.com/albapepper/burrito-league/internal/dashboard"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/poll"
	"github.com/albapepper/burrito-league/internal/provider/strava"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

type fakePoller struct {
	opts   poll.Options
	ctxErr error
	res    *poll.Result
	err    error
}

func (f *fakePoller) Run(ctx context.Context, opts poll.Options) (*poll.Result, error) {
	f.opts = opts
	f.ctxErr = ctx.Err()
	return f.res, f.err
}

type fakePrePoller struct {
	res *geocode.PrePollResult
	err error
}

func (f *fakePrePoller) Run(context.Context) (*geocode.PrePollResult, error) { return f.res, f.err }

type fakeDashboard struct {
	d     *dashboard.Dashboard
	diag  *dashboard.Diagnostics
	err   error
	loads int
}

func (f *fakeDashboard) Load(context.Context) *dashboard.Dashboard {
	f.loads++
	return f.d
}

func (f *fakeDashboard) Diagnose(context.Context) (*dashboard.Diagnostics, error) {
	return f.diag, f.err
}

type fakeStore struct {
	run       *snapshot.PollRun
	runErr    error
	coords    []geocode.Coordinate
	coordsErr error
	history   []snapshot.Snapshot
	limit     int
}

func (f *fakeStore) LatestPollRun(context.Context) (*snapshot.PollRun, error) { return f.run, f.runErr }

func (f *fakeStore) Coordinates(context.Context) ([]geocode.Coordinate, error) {
	return f.coords, f.coordsErr
}

func (f *fakeStore) SegmentHistory(_ context.Context, _ int64, limit int) ([]snapshot.Snapshot, error) {
	f.limit = limit
	return f.history, nil
}

type fakeFetcher struct {
	lb    *strava.Leaderboard
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, id int64) (*strava.Leaderboard, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.lb == nil {
		return nil, nil
	}
	lb := *f.lb
	lb.SegmentID = id
	return &lb, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func newTestHandler(t *testing.T, d Deps) *Handler {
	t.Helper()
	if d.Cache == nil {
		d.Cache = cache.New(true)
		t.Cleanup(d.Cache.Close)
	}
	if d.Config == nil {
		d.Config = &config.Config{PollTimeout: time.Minute}
	}
	return New(d)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPollStravaSuccess(t *testing.T) {
	id := uuid.New()
	p := &fakePoller{res: &poll.Result{
		PollRunID:          id,
		TotalChapters:      10,
		ValidChapters:      8,
		SuccessfulChapters: 8,
		SnapshotsInserted:  5,
		SnapshotsSkipped:   3,
		Duration:           1500 * time.Millisecond,
	}}
	h := newTestHandler(t, Deps{Poller: p})
	h.cache.Set(chaptersKey, []byte(`{}`), time.Minute)
	h.cache.Set(coordinatesKey, []byte(`[]`), time.Minute)

	rec := httptest.NewRecorder()
	h.PollStrava(rec, httptest.NewRequest(http.MethodPost, "/api/cron/poll-strava", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, id.String(), body["pollRunId"])
	assert.EqualValues(t, 10, body["totalChapters"])
	assert.EqualValues(t, 8, body["validChapters"])
	assert.EqualValues(t, 8, body["successfulChapters"])
	assert.EqualValues(t, 5, body["snapshotsInserted"])
	assert.EqualValues(t, 3, body["snapshotsSkipped"])
	assert.Equal(t, false, body["wasRateLimited"])
	assert.EqualValues(t, 1500, body["durationMs"])

	assert.Equal(t, snapshot.SourceScheduled, p.opts.Source)
	assert.False(t, p.opts.Force)

	_, _, ok := h.cache.Get(chaptersKey)
	assert.False(t, ok, "dashboard payloads are invalidated")
	_, _, ok = h.cache.Get(coordinatesKey)
	assert.True(t, ok, "coordinates are not tied to polls")
}

func TestPollStravaForceIsManual(t *testing.T) {
	p := &fakePoller{res: &poll.Result{}}
	h := newTestHandler(t, Deps{Poller: p})

	rec := httptest.NewRecorder()
	h.PollStrava(rec, httptest.NewRequest(http.MethodGet, "/api/cron/poll-strava?force=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, p.opts.Force)
	assert.Equal(t, snapshot.SourceManual, p.opts.Source)
}

func TestPollStravaManualSource(t *testing.T) {
	p := &fakePoller{res: &poll.Result{}}
	h := newTestHandler(t, Deps{Poller: p})

	rec := httptest.NewRecorder()
	h.PollStrava(rec, httptest.NewRequest(http.MethodGet, "/api/cron/poll-strava?source=manual", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, p.opts.Force)
	assert.Equal(t, snapshot.SourceManual, p.opts.Source)
}

func TestPollStravaRejectsUnknownSource(t *testing.T) {
	p := &fakePoller{res: &poll.Result{}}
	h := newTestHandler(t, Deps{Poller: p})

	rec := httptest.NewRecorder()
	h.PollStrava(rec, httptest.NewRequest(http.MethodGet, "/api/cron/poll-strava?source=hourly", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestPollStravaFailure(t *testing.T) {
	p := &fakePoller{err: errors.New("fetch chapter sheet: sheet returned 500")}
	h := newTestHandler(t, Deps{Poller: p})

	rec := httptest.NewRecorder()
	h.PollStrava(rec, httptest.NewRequest(http.MethodPost, "/api/cron/poll-strava", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "fetch chapter sheet: sheet returned 500", body["error"])
}

func TestPollStravaSurvivesClientDisconnect(t *testing.T) {
	p := &fakePoller{res: &poll.Result{}}
	h := newTestHandler(t, Deps{Poller: p})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/cron/poll-strava", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.PollStrava(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, p.ctxErr)
}

func TestPollStravaWithoutPoller(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.PollStrava(rec, httptest.NewRequest(http.MethodPost, "/api/cron/poll-strava", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPrePoll(t *testing.T) {
	pp := &fakePrePoller{res: &geocode.PrePollResult{
		Message:        "Geocoded 1 new cities",
		SheetChapters:  40,
		NewCities:      2,
		Geocoded:       1,
		GeocodedCities: []string{"Boise, ID"},
		FailedCities:   []string{"Nowhere, ZZ (geocode failed)"},
	}}
	h := newTestHandler(t, Deps{PrePoller: pp})
	h.cache.Set(coordinatesKey, []byte(`[]`), time.Minute)

	rec := httptest.NewRecorder()
	h.PrePoll(rec, httptest.NewRequest(http.MethodPost, "/api/cron/pre-poll", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Geocoded 1 new cities", body["message"])
	assert.EqualValues(t, 40, body["sheetChapters"])
	assert.EqualValues(t, 2, body["newCities"])
	assert.EqualValues(t, 1, body["geocoded"])
	assert.Equal(t, []interface{}{"Boise, ID"}, body["geocodedCities"])

	_, _, ok := h.cache.Get(coordinatesKey)
	assert.False(t, ok)
}

func TestPrePollFailure(t *testing.T) {
	h := newTestHandler(t, Deps{PrePoller: &fakePrePoller{err: errors.New("db down")}})

	rec := httptest.NewRecorder()
	h.PrePoll(rec, httptest.NewRequest(http.MethodGet, "/api/cron/pre-poll", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "db down", body["error"])
}

func freshDashboard() *dashboard.Dashboard {
	return &dashboard.Dashboard{
		Tier:        dashboard.TierFresh,
		LastUpdated: time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC),
		Chapters: []dashboard.ChapterView{
			{City: "Tempe", State: "AZ", Country: "USA", DisplayLocation: "Tempe, AZ", SegmentID: 11, Conference: true},
			{City: "Boise", State: "ID", Country: "USA", DisplayLocation: "Boise, ID"},
		},
		Stats: dashboard.GlobalStats{TotalChapters: 2, TotalEfforts: 1200, EffortsDisplay: "1,200"},
	}
}

func TestChaptersCachesFreshTier(t *testing.T) {
	fd := &fakeDashboard{d: freshDashboard()}
	h := newTestHandler(t, Deps{Dashboard: fd})

	rec := httptest.NewRecorder()
	h.Chapters(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chapters", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	body := decode(t, rec)
	assert.Equal(t, "fresh", body["tier"])
	assert.EqualValues(t, 2, body["count"])

	rec = httptest.NewRecorder()
	h.Chapters(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chapters", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, fd.loads)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chapters", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.Chapters(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestChaptersDoesNotCacheDegradedTier(t *testing.T) {
	d := freshDashboard()
	d.Tier = dashboard.TierCached
	fd := &fakeDashboard{d: d}
	h := newTestHandler(t, Deps{Dashboard: fd})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Chapters(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chapters", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cached", decode(t, rec)["tier"])
	}
	assert.Equal(t, 2, fd.loads)
}

func TestChaptersWithoutServiceServesFallback(t *testing.T) {
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.Chapters(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chapters", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fallback", body["tier"])
	assert.NotEmpty(t, body["chapters"])
}

func TestStats(t *testing.T) {
	h := newTestHandler(t, Deps{Dashboard: &fakeDashboard{d: freshDashboard()}})

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fresh", body["tier"])
	assert.EqualValues(t, 2, body["totalChapters"])
	assert.Equal(t, "1,200", body["totalEffortsDisplay"])
}

func TestCoordinatesMergesStored(t *testing.T) {
	st := &fakeStore{coords: []geocode.Coordinate{
		{City: "Ketchum", State: "ID", Country: "USA", Lat: 43.68, Lng: -114.36, Source: geocode.SourceGeocoded},
	}}
	h := newTestHandler(t, Deps{Store: st})

	rec := httptest.NewRecorder()
	h.Coordinates(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coordinates", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var coords []geocode.Coordinate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &coords))
	assert.Len(t, coords, len(h.known)+1)

	_, _, ok := h.cache.Get(coordinatesKey)
	assert.True(t, ok)
}

func TestCoordinatesStoreErrorServesKnown(t *testing.T) {
	h := newTestHandler(t, Deps{Store: &fakeStore{coordsErr: errors.New("db down")}})

	rec := httptest.NewRecorder()
	h.Coordinates(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coordinates", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var coords []geocode.Coordinate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &coords))
	assert.Len(t, coords, len(h.known))

	_, _, ok := h.cache.Get(coordinatesKey)
	assert.False(t, ok, "a partial list is not cached")
}

func TestLatestPollRun(t *testing.T) {
	h := newTestHandler(t, Deps{Store: &fakeStore{}})
	rec := httptest.NewRecorder()
	h.LatestPollRun(rec, httptest.NewRequest(http.MethodGet, "/api/v1/poll-runs/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	run := &snapshot.PollRun{ID: uuid.New(), ChaptersPolled: 3, Source: snapshot.SourceScheduled}
	h = newTestHandler(t, Deps{Store: &fakeStore{run: run}})
	rec = httptest.NewRecorder()
	h.LatestPollRun(rec, httptest.NewRequest(http.MethodGet, "/api/v1/poll-runs/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, run.ID.String(), decode(t, rec)["id"])
}

func segmentRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/segments/{segmentID}", h.Segment)
	return r
}

func TestSegmentHistory(t *testing.T) {
	st := &fakeStore{history: []snapshot.Snapshot{
		{SegmentID: 42, TotalEfforts: 300},
		{SegmentID: 42, TotalEfforts: 250},
	}}
	h := newTestHandler(t, Deps{Store: st})
	r := chi.NewRouter()
	r.Get("/segments/{segmentID}/history", h.SegmentHistory)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []snapshot.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
	assert.Equal(t, defaultHistoryLimit, st.limit)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42/history?limit=10000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, st.limit)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42/history?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSegmentBadID(t *testing.T) {
	h := newTestHandler(t, Deps{Fetcher: &fakeFetcher{}})
	for _, id := range []string{"abc", "0", "-4"} {
		rec := httptest.NewRecorder()
		segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/"+id, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestSegmentFetchAndCache(t *testing.T) {
	f := &fakeFetcher{lb: &strava.Leaderboard{TotalEfforts: 400, Male: snapshot.Leader{Name: "Ana", Efforts: 20}}}
	h := newTestHandler(t, Deps{Fetcher: f})

	rec := httptest.NewRecorder()
	segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 42, body["segmentId"])
	assert.EqualValues(t, 400, body["totalEfforts"])

	rec = httptest.NewRecorder()
	segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, f.calls)
}

func TestSegmentWithoutLegendDataIsNotFound(t *testing.T) {
	f := &fakeFetcher{}
	h := newTestHandler(t, Deps{Fetcher: f})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, f.calls)

	_, _, ok := h.cache.GetStale(segmentKey(42))
	assert.False(t, ok)
}

func TestSegmentServesStaleOnFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("strava returned 500")}
	h := newTestHandler(t, Deps{Fetcher: f})
	h.cache.SetStale(segmentKey(42), []byte(`{"segmentId":42,"totalEfforts":10}`), -time.Second, time.Hour)

	rec := httptest.NewRecorder()
	segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Cache-Stale"))
	assert.Equal(t, "STALE", rec.Header().Get("X-Cache"))
	assert.EqualValues(t, 10, decode(t, rec)["totalEfforts"])
}

func TestSegmentUpstreamErrors(t *testing.T) {
	h := newTestHandler(t, Deps{Fetcher: &fakeFetcher{err: errors.New("strava returned 500")}})
	rec := httptest.NewRecorder()
	segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/7", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	h = newTestHandler(t, Deps{Fetcher: &fakeFetcher{err: strava.ErrRateLimited}})
	rec = httptest.NewRecorder()
	segmentRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/segments/7", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestDebugChapters(t *testing.T) {
	fd := &fakeDashboard{diag: &dashboard.Diagnostics{TotalSnapshots: 12, OrphanSegments: []int64{99}}}
	h := newTestHandler(t, Deps{Dashboard: fd})

	rec := httptest.NewRecorder()
	h.DebugChapters(rec, httptest.NewRequest(http.MethodGet, "/api/v1/debug/chapters", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 12, body["totalSnapshots"])
	assert.Equal(t, []interface{}{float64(99)}, body["orphanSegments"])

	fd.err = errors.New("sheet down")
	rec = httptest.NewRecorder()
	h.DebugChapters(rec, httptest.NewRequest(http.MethodGet, "/api/v1/debug/chapters", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthCheckDB(t *testing.T) {
	h := newTestHandler(t, Deps{Health: fakeHealth{}})
	rec := httptest.NewRecorder()
	h.HealthCheckDB(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", decode(t, rec)["database"])

	h = newTestHandler(t, Deps{Health: fakeHealth{err: errors.New("refused")}})
	rec = httptest.NewRecorder()
	h.HealthCheckDB(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
