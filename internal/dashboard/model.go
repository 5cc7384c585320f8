// Package dashboard assembles the leaderboard read model: the best snapshot
// of every chapter in the current sheet, leader deltas from history, global
// totals and the display order.
package dashboard

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// conferenceCities are shown first, in this order.
var conferenceCities = []string{
	"tempe",
	"san francisco",
	"redlands",
	"new york",
	"denver / wheat ridge",
	"flagstaff",
}

// minPlausibleEfforts: totals below this mean the last poll was throttled
// and the fallback totals are shown instead.
const minPlausibleEfforts = 1000

// Tier says where a dashboard payload came from.
type Tier string

const (
	TierFresh    Tier = "fresh"
	TierCached   Tier = "cached"
	TierFallback Tier = "fallback"
)

// LeaderView is a leader slot ready for display.
type LeaderView struct {
	Name       string                `json:"name"`
	ProfilePic string                `json:"profilePic"`
	Efforts    int                   `json:"efforts"`
	Delta      *snapshot.LeaderDelta `json:"delta,omitempty"`
}

// SegmentData is the displayed reading of a chapter's segment.
type SegmentData struct {
	SegmentID     int64      `json:"segmentId"`
	TotalEfforts  string     `json:"totalEfforts"`
	TotalAthletes string     `json:"totalAthletes"`
	TotalDistance string     `json:"totalDistance"`
	EffortsCount  int        `json:"effortsCount"`
	AthletesCount int        `json:"athletesCount"`
	Male          LeaderView `json:"maleLeader"`
	Female        LeaderView `json:"femaleLeader"`
	LastUpdated   time.Time  `json:"lastUpdated"`
}

// ChapterView is one dashboard card. Data is nil for chapters without a
// recorded snapshot.
type ChapterView struct {
	City            string          `json:"city"`
	State           string          `json:"state"`
	Country         string          `json:"country"`
	DisplayLocation string          `json:"displayLocation"`
	SegmentID       int64           `json:"segmentId,omitempty"`
	SegmentURL      string          `json:"segmentUrl,omitempty"`
	Status          segments.Status `json:"status"`
	Conference      bool            `json:"conference"`
	Data            *SegmentData    `json:"segmentData"`
}

// GlobalStats are the league-wide totals.
type GlobalStats struct {
	TotalChapters int  `json:"totalChapters"`
	TotalEfforts  int  `json:"totalEfforts"`
	TotalAthletes int  `json:"totalAthletes"`
	TotalMiles    int  `json:"totalMiles"`
	Fallback      bool `json:"fallback"`

	EffortsDisplay  string `json:"totalEffortsDisplay"`
	AthletesDisplay string `json:"totalAthletesDisplay"`
	MilesDisplay    string `json:"totalMilesDisplay"`
}

// Dashboard is the full read model served to clients.
type Dashboard struct {
	Tier        Tier              `json:"tier"`
	PollRun     *snapshot.PollRun `json:"pollRun,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Chapters    []ChapterView     `json:"chapters"`
	Stats       GlobalStats       `json:"stats"`
}

// Build joins recent snapshots (newest first, across segments) with the
// current sheet chapters. Snapshots of segments no longer in the sheet are
// dropped; chapters without snapshots are kept with no data. The result is
// in display order.
func Build(recent []snapshot.Snapshot, chapters []segments.Chapter) []ChapterView {
	bySegment := make(map[int64][]snapshot.Snapshot)
	for _, s := range recent {
		bySegment[s.SegmentID] = append(bySegment[s.SegmentID], s)
	}

	views := make([]ChapterView, 0, len(chapters))
	for _, ch := range chapters {
		v := ChapterView{
			City:            ch.City,
			State:           ch.State,
			Country:         ch.Country,
			DisplayLocation: ch.DisplayLocation,
			SegmentID:       ch.SegmentID,
			SegmentURL:      ch.SegmentURL,
			Status:          ch.Status,
			Conference:      conferenceRank(ch.City) >= 0,
		}
		if ch.Valid() {
			if history := bySegment[ch.SegmentID]; len(history) > 0 {
				v.Data = segmentData(history[0], history[1:])
				if v.DisplayLocation == "" {
					v.DisplayLocation = history[0].DisplayLocation
				}
			}
		}
		views = append(views, v)
	}

	Order(views)
	return views
}

func segmentData(best snapshot.Snapshot, history []snapshot.Snapshot) *SegmentData {
	distance := best.TotalDistance
	if distance == "" {
		distance = "0 mi"
	}
	return &SegmentData{
		SegmentID:     best.SegmentID,
		TotalEfforts:  commaInt(best.TotalEfforts),
		TotalAthletes: commaInt(best.TotalAthletes),
		TotalDistance: distance,
		EffortsCount:  best.TotalEfforts,
		AthletesCount: best.TotalAthletes,
		Male:          leaderView(best.Male, snapshot.LeaderHistory(history, false)),
		Female:        leaderView(best.Female, snapshot.LeaderHistory(history, true)),
		LastUpdated:   best.PolledAt,
	}
}

func leaderView(l snapshot.Leader, history []snapshot.LeaderEntry) LeaderView {
	delta := snapshot.CalculateDelta(l.Name, l.Efforts, history)
	v := LeaderView{
		Name:       l.DisplayName(),
		ProfilePic: l.ProfilePic,
		Efforts:    l.Efforts,
	}
	if delta.Delta != nil || delta.IsNewLeader {
		v.Delta = &delta
	}
	return v
}

// Order sorts views in place: conference cities first in their fixed
// order, then the rest by total efforts descending with chapters that have
// no data last.
func Order(views []ChapterView) {
	sort.SliceStable(views, func(i, j int) bool {
		ri, rj := conferenceRank(views[i].City), conferenceRank(views[j].City)
		switch {
		case ri >= 0 && rj >= 0:
			return ri < rj
		case ri >= 0:
			return true
		case rj >= 0:
			return false
		}
		return sortEfforts(views[i]) > sortEfforts(views[j])
	})
}

func sortEfforts(v ChapterView) int {
	if v.Data == nil {
		return -1
	}
	return v.Data.EffortsCount
}

func conferenceRank(city string) int {
	c := strings.ToLower(strings.TrimSpace(city))
	for i, name := range conferenceCities {
		if c == name {
			return i
		}
	}
	return -1
}

// Stats totals the chapters with data. When the efforts total is
// implausibly low the given fallback totals are returned instead.
func Stats(views []ChapterView, fallback GlobalStats) GlobalStats {
	var st GlobalStats
	var miles float64
	for _, v := range views {
		if v.Data == nil {
			continue
		}
		st.TotalChapters++
		st.TotalEfforts += v.Data.EffortsCount
		st.TotalAthletes += v.Data.AthletesCount
		miles += ParseMiles(v.Data.TotalDistance)
	}
	st.TotalMiles = int(miles + 0.5)

	if st.TotalEfforts < minPlausibleEfforts {
		chapters := st.TotalChapters
		st = fallback
		st.Fallback = true
		if chapters > 0 {
			st.TotalChapters = chapters
		}
	}
	if st.TotalChapters == 0 {
		st.TotalChapters = fallback.TotalChapters
	}
	return st.withDisplay()
}

func (st GlobalStats) withDisplay() GlobalStats {
	st.EffortsDisplay = commaInt(st.TotalEfforts)
	st.AthletesDisplay = commaInt(st.TotalAthletes)
	st.MilesDisplay = commaInt(st.TotalMiles)
	return st
}

func commaInt(n int) string { return humanize.Comma(int64(n)) }

// ParseMiles reads a distance like "13,972 mi" or "890.5 mi". Unparseable
// input counts as zero.
func ParseMiles(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "mi"))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
