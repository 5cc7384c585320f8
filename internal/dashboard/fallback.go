package dashboard

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

//go:embed fallback.yaml
var fallbackYAML []byte

type fallbackLeader struct {
	Name    string `yaml:"name"`
	Efforts int    `yaml:"efforts"`
}

type fallbackChapter struct {
	DisplayLocation string         `yaml:"display_location"`
	TotalEfforts    int            `yaml:"total_efforts"`
	Male            fallbackLeader `yaml:"male"`
	Female          fallbackLeader `yaml:"female"`
}

// Fallback is the embedded last-known dashboard.
type Fallback struct {
	CapturedAt time.Time `yaml:"captured_at"`
	Global     struct {
		Chapters int `yaml:"chapters"`
		Efforts  int `yaml:"efforts"`
		Athletes int `yaml:"athletes"`
		Miles    int `yaml:"miles"`
	} `yaml:"global"`
	Chapters map[string]fallbackChapter `yaml:"chapters"`
}

// LoadFallback parses the embedded fallback data.
func LoadFallback() (*Fallback, error) {
	var fb Fallback
	if err := yaml.Unmarshal(fallbackYAML, &fb); err != nil {
		return nil, fmt.Errorf("parse fallback data: %w", err)
	}
	return &fb, nil
}

// Stats returns the fallback global totals.
func (fb *Fallback) Stats() GlobalStats {
	return GlobalStats{
		TotalChapters: fb.Global.Chapters,
		TotalEfforts:  fb.Global.Efforts,
		TotalAthletes: fb.Global.Athletes,
		TotalMiles:    fb.Global.Miles,
	}
}

// Chapter returns the fallback card for a city, if one was captured.
func (fb *Fallback) Chapter(city string) (ChapterView, bool) {
	key := strings.ToLower(strings.TrimSpace(city))
	c, ok := fb.Chapters[key]
	if !ok {
		return ChapterView{}, false
	}
	male := snapshot.Leader{Name: c.Male.Name, Efforts: c.Male.Efforts}
	female := snapshot.Leader{Name: c.Female.Name, Efforts: c.Female.Efforts}
	return ChapterView{
		City:            key,
		DisplayLocation: c.DisplayLocation,
		Status:          segments.StatusValid,
		Conference:      conferenceRank(key) >= 0,
		Data: &SegmentData{
			TotalEfforts:  commaInt(c.TotalEfforts),
			TotalAthletes: "0",
			TotalDistance: "0 mi",
			EffortsCount:  c.TotalEfforts,
			Male:          LeaderView{Name: male.DisplayName(), Efforts: male.Efforts},
			Female:        LeaderView{Name: female.DisplayName(), Efforts: female.Efforts},
			LastUpdated:   fb.CapturedAt,
		},
	}, true
}

// Dashboard renders the whole fallback as a dashboard payload.
func (fb *Fallback) Dashboard() *Dashboard {
	keys := make([]string, 0, len(fb.Chapters))
	for k := range fb.Chapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	views := make([]ChapterView, 0, len(keys))
	for _, k := range keys {
		v, _ := fb.Chapter(k)
		views = append(views, v)
	}
	Order(views)

	stats := fb.Stats()
	stats.Fallback = true
	return &Dashboard{
		Tier:        TierFallback,
		LastUpdated: fb.CapturedAt,
		Chapters:    views,
		Stats:       stats.withDisplay(),
	}
}
