// Package segments maps chapter sheet rows to verified Strava segment ids.
//
// Resolution consults two curated tables: city → id first, then segment
// name → id. Rows that resolve to an id already claimed by an earlier row are
// dropped; rows that resolve to nothing are kept and flagged so the chapter
// still appears until someone supplies a segment.
package segments

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/albapepper/burrito-league/internal/location"
	"github.com/albapepper/burrito-league/internal/sheet"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// SegmentURLPrefix is the public Strava segment page.
const SegmentURLPrefix = "https://www.strava.com/segments/"

// Status of a resolved chapter.
type Status string

const (
	StatusValid       Status = "valid"
	StatusNeedSegment Status = "need_segment"
)

// Tables holds the curated lookup tables.
type Tables struct {
	Cities map[string]int64 `yaml:"cities"`
	Names  map[string]int64 `yaml:"names"`
}

// Chapter is a sheet row after resolution.
type Chapter struct {
	sheet.Record
	SegmentID       int64  `json:"segmentId,omitempty"`
	Status          Status `json:"status"`
	DisplayLocation string `json:"displayLocation"`
	SegmentURL      string `json:"segmentUrl,omitempty"`
}

// Valid reports whether the chapter has a verified segment.
func (c Chapter) Valid() bool { return c.Status == StatusValid }

// Key is the location.Key of the chapter's city.
func (c Chapter) Key() string { return location.Key(c.City, c.State, c.Country) }

// DefaultTables parses the embedded tables.
func DefaultTables() (*Tables, error) {
	return ParseTables(defaultTablesYAML)
}

// LoadTables reads tables from a YAML file. An empty path returns the
// embedded defaults.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and normalizes a tables document.
func ParseTables(data []byte) (*Tables, error) {
	var raw Tables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode segment tables: %w", err)
	}
	t := &Tables{
		Cities: make(map[string]int64, len(raw.Cities)),
		Names:  make(map[string]int64, len(raw.Names)),
	}
	for k, v := range raw.Cities {
		if v <= 0 {
			return nil, fmt.Errorf("city %q: segment id must be positive", k)
		}
		t.Cities[normalize(k)] = v
	}
	for k, v := range raw.Names {
		if v <= 0 {
			return nil, fmt.Errorf("name %q: segment id must be positive", k)
		}
		t.Names[normalize(k)] = v
	}
	if len(t.Cities) == 0 && len(t.Names) == 0 {
		return nil, fmt.Errorf("segment tables are empty")
	}
	return t, nil
}

// Lookup returns the verified segment id for a row, or 0.
func (t *Tables) Lookup(segmentName, city string) int64 {
	if id, ok := t.Cities[normalize(city)]; ok {
		return id
	}
	if id, ok := t.Names[normalize(segmentName)]; ok {
		return id
	}
	return 0
}

// Build resolves every record and assigns display locations.
func (t *Tables) Build(records []sheet.Record) []Chapter {
	type row struct {
		rec  sheet.Record
		id   int64
		base string
	}

	seen := make(map[int64]bool)
	rows := make([]row, 0, len(records))
	totals := make(map[string]int)
	for _, rec := range records {
		id := t.Lookup(rec.SegmentName, rec.City)
		if id != 0 {
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		base := location.Format(rec.City, rec.State, rec.Country)
		if id != 0 {
			totals[base]++
		}
		rows = append(rows, row{rec: rec, id: id, base: base})
	}

	counts := make(map[string]int)
	chapters := make([]Chapter, 0, len(rows))
	for _, r := range rows {
		ch := Chapter{
			Record:          r.rec,
			DisplayLocation: r.base,
			Status:          StatusNeedSegment,
		}
		if r.id != 0 {
			ch.SegmentID = r.id
			ch.Status = StatusValid
			ch.SegmentURL = SegmentURLPrefix + strconv.FormatInt(r.id, 10)
			if totals[r.base] > 1 {
				counts[r.base]++
				ch.DisplayLocation = fmt.Sprintf("%s #%d", r.base, counts[r.base])
			}
		}
		chapters = append(chapters, ch)
	}
	return chapters
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
