package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/sheet"
)

func TestLookupSendsSearchParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Tempe, AZ, USA", q.Get("q"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "us", q.Get("countrycodes"))
		assert.Equal(t, "BurritoLeague/test", r.Header.Get("User-Agent"))
		_, _ = fmt.Fprint(w, `[{"lat":"33.4255","lon":"-111.9400","display_name":"Tempe"}]`)
	}))
	defer srv.Close()

	pt, err := NewClient(srv.URL+"/", "BurritoLeague/test", nil).Lookup(context.Background(), "Tempe", "AZ", "USA")
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.InDelta(t, 33.4255, pt.Lat, 1e-9)
	assert.InDelta(t, -111.94, pt.Lng, 1e-9)
}

func TestLookupUnknownCountryOmitsCountryCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "Lyon, France", r.URL.Query().Get("q"))
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	pt, err := NewClient(srv.URL, "ua", nil).Lookup(context.Background(), "Lyon", "", "France")
	require.NoError(t, err)
	assert.Nil(t, pt)
}

func TestLookupErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "ua", nil).Lookup(context.Background(), "Tempe", "AZ", "USA")
	assert.ErrorContains(t, err, "403")
}

func TestKnownCoordinates(t *testing.T) {
	known, err := Known()
	require.NoError(t, err)
	assert.NotEmpty(t, known)

	keys := make(map[string]bool)
	for _, c := range known {
		assert.Equal(t, SourceStatic, c.Source)
		keys[c.Key()] = true
	}
	assert.True(t, keys["tempe|arizona|usa"])
	assert.True(t, keys["calgary|alberta|can"])
}

func TestMergePrefersStored(t *testing.T) {
	known := []Coordinate{{City: "Tempe", State: "Arizona", Country: "USA", Lat: 1, Source: SourceStatic}}
	stored := []Coordinate{
		{City: "tempe", State: "AZ", Country: "US", Lat: 2, Source: SourceManual},
		{City: "Bend", State: "OR", Country: "USA", Lat: 3, Source: SourceGeocoded},
	}
	merged := Merge(known, stored)
	require.Len(t, merged, 2)
	assert.Equal(t, 2.0, merged[0].Lat)
	assert.Equal(t, SourceManual, merged[0].Source)
	assert.Equal(t, "Bend", merged[1].City)
}

type staticSheet []sheet.Record

func (s staticSheet) Fetch(context.Context) ([]sheet.Record, error) { return s, nil }

type fakeGeocoder struct {
	points map[string]*Point
	calls  []string
}

func (f *fakeGeocoder) Lookup(_ context.Context, city, state, country string) (*Point, error) {
	f.calls = append(f.calls, city)
	if city == "Broken" {
		return nil, errors.New("upstream down")
	}
	return f.points[city], nil
}

type memCoords struct {
	rows      []Coordinate
	upsertErr error
}

func (m *memCoords) Coordinates(context.Context) ([]Coordinate, error) { return m.rows, nil }

func (m *memCoords) UpsertCoordinate(_ context.Context, c Coordinate) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows = append(m.rows, c)
	return nil
}

func TestPrePollGeocodesOnlyNewCities(t *testing.T) {
	src := staticSheet{
		{SegmentName: "a", City: "Tempe", State: "AZ", Country: "USA"},   // embedded list
		{SegmentName: "b", City: "Ojai", State: "CA", Country: "USA"},    // stored already
		{SegmentName: "c", City: "Lyon", State: "", Country: "France"},   // new
		{SegmentName: "d", City: "Lyon", State: "", Country: "France"},   // same city again
		{SegmentName: "e", City: "Nowhere", State: "", Country: "Chile"}, // no match
		{SegmentName: "f", City: "Broken", State: "NM", Country: "USA"},  // lookup error
	}
	store := &memCoords{rows: []Coordinate{{City: "Ojai", State: "California", Country: "USA", Source: SourceManual}}}
	geo := &fakeGeocoder{points: map[string]*Point{"Lyon": {Lat: 45.76, Lng: 4.83}}}
	resolver := segments.NewStaticResolver(&segments.Tables{Cities: map[string]int64{}, Names: map[string]int64{}})

	res, err := NewPrePoller(src, resolver, geo, store, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, res.SheetChapters)
	assert.Equal(t, 3, res.NewCities)
	assert.Equal(t, 1, res.Geocoded)
	assert.Equal(t, []string{"Lyon, France"}, res.GeocodedCities)
	assert.Equal(t, []string{"Nowhere, Chile (geocode failed)", "Broken, NM (geocode failed)"}, res.FailedCities)
	assert.Equal(t, "Geocoded 1 new cities", res.Message)
	assert.Equal(t, []string{"Lyon", "Nowhere", "Broken"}, geo.calls)

	require.Len(t, store.rows, 2)
	assert.Equal(t, SourceGeocoded, store.rows[1].Source)
}

func TestPrePollNothingNew(t *testing.T) {
	src := staticSheet{{SegmentName: "a", City: "Tempe", State: "Arizona", Country: "USA"}}
	geo := &fakeGeocoder{}
	resolver := segments.NewStaticResolver(&segments.Tables{Cities: map[string]int64{}, Names: map[string]int64{}})

	res, err := NewPrePoller(src, resolver, geo, &memCoords{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No new cities to geocode", res.Message)
	assert.Zero(t, res.NewCities)
	assert.Empty(t, geo.calls)
}

func TestPrePollSaveFailure(t *testing.T) {
	src := staticSheet{{SegmentName: "a", City: "Lyon", Country: "France"}}
	geo := &fakeGeocoder{points: map[string]*Point{"Lyon": {Lat: 1, Lng: 2}}}
	resolver := segments.NewStaticResolver(&segments.Tables{Cities: map[string]int64{}, Names: map[string]int64{}})

	res, err := NewPrePoller(src, resolver, geo, &memCoords{upsertErr: errors.New("db down")}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Geocoded)
	assert.Equal(t, []string{"Lyon, France (save failed)"}, res.FailedCities)
}
