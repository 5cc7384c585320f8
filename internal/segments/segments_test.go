package segments

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/albapepper/burrito-league/internal/sheet"
)

func testTables() *Tables {
	return &Tables{
		Cities: map[string]int64{"tempe": 40744376, "atlanta": 111},
		Names:  map[string]int64{"piedmont park burrito loop": 222, "old tempe mile": 40744376},
	}
}

func TestDefaultTablesLoad(t *testing.T) {
	tables, err := DefaultTables()
	require.NoError(t, err)
	assert.Equal(t, int64(40744376), tables.Cities["tempe"])
	assert.Equal(t, int64(40750921), tables.Cities["denver / wheat ridge"])
	assert.Len(t, tables.Cities, 23)
}

func TestLookup(t *testing.T) {
	tables := testTables()

	t.Run("city wins over name", func(t *testing.T) {
		assert.Equal(t, int64(111), tables.Lookup("Piedmont Park Burrito Loop", "Atlanta"))
	})
	t.Run("falls back to name", func(t *testing.T) {
		assert.Equal(t, int64(222), tables.Lookup("  Piedmont PARK burrito loop ", "Decatur"))
	})
	t.Run("normalizes city", func(t *testing.T) {
		assert.Equal(t, int64(40744376), tables.Lookup("", "  TEMPE "))
	})
	t.Run("unresolved", func(t *testing.T) {
		assert.Zero(t, tables.Lookup("Unknown", "Nowhere"))
	})
	t.Run("idempotent", func(t *testing.T) {
		first := tables.Lookup("Piedmont Park Burrito Loop", "Decatur")
		assert.Equal(t, first, tables.Lookup("Piedmont Park Burrito Loop", "Decatur"))
	})
}

func TestBuildNumbersSharedLocationsAndDropsDuplicateIDs(t *testing.T) {
	tables := &Tables{
		Cities: map[string]int64{},
		Names: map[string]int64{
			"piedmont": 111,
			"beltline": 222,
			"piedmont renamed": 111,
		},
	}
	records := []sheet.Record{
		{SegmentName: "Piedmont", City: "Atlanta", State: "Georgia", Country: "USA"},
		{SegmentName: "Beltline", City: "Atlanta", State: "GA", Country: "USA"},
		{SegmentName: "Piedmont renamed", City: "Atlanta", State: "Georgia", Country: "USA"},
	}

	chapters := tables.Build(records)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Atlanta, GA #1", chapters[0].DisplayLocation)
	assert.Equal(t, int64(111), chapters[0].SegmentID)
	assert.Equal(t, "Atlanta, GA #2", chapters[1].DisplayLocation)
	assert.Equal(t, int64(222), chapters[1].SegmentID)
	assert.Equal(t, "https://www.strava.com/segments/222", chapters[1].SegmentURL)
}

func TestBuildKeepsUnresolvedRows(t *testing.T) {
	records := []sheet.Record{
		{SegmentName: "x", City: "Atlanta", State: "GA", Country: "USA"},
		{SegmentName: "mystery", City: "Atlanta", State: "GA", Country: "USA"},
		{SegmentName: "", City: "Nowhere", State: "", Country: "NZ"},
	}

	tables := &Tables{Names: map[string]int64{"x": 111}}
	chapters := tables.Build(records)
	require.Len(t, chapters, 3)

	assert.True(t, chapters[0].Valid())
	assert.Equal(t, "Atlanta, GA", chapters[0].DisplayLocation, "single resolved row is not numbered")

	assert.Equal(t, StatusNeedSegment, chapters[1].Status)
	assert.Equal(t, "Atlanta, GA", chapters[1].DisplayLocation)
	assert.Zero(t, chapters[1].SegmentID)
	assert.Empty(t, chapters[1].SegmentURL)

	assert.Equal(t, "Nowhere, New Zealand", chapters[2].DisplayLocation)
}

func TestParseTablesRejectsBadInput(t *testing.T) {
	_, err := ParseTables([]byte("cities: [1, 2"))
	assert.Error(t, err)

	_, err = ParseTables([]byte("cities:\n  tempe: -1\n"))
	assert.Error(t, err)

	_, err = ParseTables([]byte("cities: {}\nnames: {}\n"))
	assert.Error(t, err)
}

func TestSuggest(t *testing.T) {
	r := NewStaticResolver(testTables())
	chapters := r.BuildChapters([]sheet.Record{
		{City: "Tempee", Country: "USA"},
		{City: "Tempe", Country: "USA"},
		{City: "Completely Different", Country: "USA"},
	})

	suggestions := r.Suggest(chapters)
	require.Len(t, suggestions, 1)
	assert.Equal(t, Suggestion{City: "Tempee", Candidate: "tempe", SegmentID: 40744376, Distance: 1}, suggestions[0])
}

func TestWatchReloadsOverrideFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cities:\n  tempe: 1\n"), 0o644))

	r, err := NewResolver(path, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Resolve("", "Tempe"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("cities:\n  tempe: 2\n"), 0o644))
	assert.Eventually(t, func() bool { return r.Resolve("", "Tempe") == 2 }, 3*time.Second, 20*time.Millisecond)

	// A broken file keeps the previous tables.
	require.NoError(t, os.WriteFile(path, []byte("cities: [broken"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(2), r.Resolve("", "Tempe"))

	cancel()
	require.NoError(t, <-done)
}

func TestWatchWithoutOverrideReturns(t *testing.T) {
	r, err := NewResolver("", nil)
	require.NoError(t, err)
	assert.NoError(t, r.Watch(context.Background()))
}
