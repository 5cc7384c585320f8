package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/sheet"
)

// SheetSource returns the current chapter rows.
type SheetSource interface {
	Fetch(ctx context.Context) ([]sheet.Record, error)
}

// Geocoder resolves a city to a point, nil when unknown.
type Geocoder interface {
	Lookup(ctx context.Context, city, state, country string) (*Point, error)
}

// Store persists geocoded coordinates.
type Store interface {
	Coordinates(ctx context.Context) ([]Coordinate, error)
	UpsertCoordinate(ctx context.Context, c Coordinate) error
}

// PrePollResult is returned by a pre-poll pass.
type PrePollResult struct {
	Message        string   `json:"message"`
	SheetChapters  int      `json:"sheetChapters"`
	NewCities      int      `json:"newCities"`
	Geocoded       int      `json:"geocoded"`
	GeocodedCities []string `json:"geocodedCities,omitempty"`
	FailedCities   []string `json:"failedCities,omitempty"`
}

// Summary returns a human-readable summary of the pass.
func (r *PrePollResult) Summary() string {
	return fmt.Sprintf("sheet=%d new=%d geocoded=%d failed=%d",
		r.SheetChapters, r.NewCities, r.Geocoded, len(r.FailedCities))
}

// PrePoller finds sheet cities without coordinates and geocodes them.
type PrePoller struct {
	sheet    SheetSource
	resolver *segments.Resolver
	geocoder Geocoder
	store    Store
	logger   *slog.Logger
}

// NewPrePoller creates a pre-poll pass runner.
func NewPrePoller(src SheetSource, resolver *segments.Resolver, geocoder Geocoder, store Store, logger *slog.Logger) *PrePoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrePoller{sheet: src, resolver: resolver, geocoder: geocoder, store: store, logger: logger}
}

// Missing returns one chapter per sheet city that has neither an embedded
// nor a stored coordinate, along with the number of chapters in the sheet.
func (p *PrePoller) Missing(ctx context.Context) ([]segments.Chapter, int, error) {
	records, err := p.sheet.Fetch(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch sheet: %w", err)
	}
	chapters := p.resolver.BuildChapters(records)

	known, err := Known()
	if err != nil {
		return nil, 0, err
	}
	stored, err := p.store.Coordinates(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load stored coordinates: %w", err)
	}
	have := make(map[string]bool, len(known)+len(stored))
	for _, c := range Merge(known, stored) {
		have[c.Key()] = true
	}

	var missing []segments.Chapter
	for _, ch := range chapters {
		k := ch.Key()
		if have[k] {
			continue
		}
		have[k] = true
		missing = append(missing, ch)
	}
	return missing, len(chapters), nil
}

// Run geocodes every missing city and stores the hits. Per-city failures
// are listed in the result; only sheet and store read failures are errors.
func (p *PrePoller) Run(ctx context.Context) (*PrePollResult, error) {
	missing, total, err := p.Missing(ctx)
	if err != nil {
		return nil, err
	}
	result := &PrePollResult{SheetChapters: total, NewCities: len(missing)}
	p.logger.Info("Pre-poll scan complete", "sheet_chapters", total, "new_cities", len(missing))

	if len(missing) == 0 {
		result.Message = "No new cities to geocode"
		return result, nil
	}

	for _, ch := range missing {
		label := cityLabel(ch)
		pt, err := p.geocoder.Lookup(ctx, ch.City, ch.State, ch.Country)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Geocode failed", "city", ch.City, "state", ch.State, "country", ch.Country, "error", err)
			result.FailedCities = append(result.FailedCities, label+" (geocode failed)")
			continue
		}
		if pt == nil {
			p.logger.Warn("No geocoding results", "city", ch.City, "state", ch.State, "country", ch.Country)
			result.FailedCities = append(result.FailedCities, label+" (geocode failed)")
			continue
		}

		c := Coordinate{
			City:    ch.City,
			State:   ch.State,
			Country: ch.Country,
			Lat:     pt.Lat,
			Lng:     pt.Lng,
			Source:  SourceGeocoded,
		}
		if err := p.store.UpsertCoordinate(ctx, c); err != nil {
			p.logger.Warn("Failed to save coordinate", "city", ch.City, "error", err)
			result.FailedCities = append(result.FailedCities, label+" (save failed)")
			continue
		}
		result.Geocoded++
		result.GeocodedCities = append(result.GeocodedCities, label)
		p.logger.Info("Geocoded city", "city", ch.City, "lat", pt.Lat, "lng", pt.Lng)
	}

	result.Message = fmt.Sprintf("Geocoded %d new cities", result.Geocoded)
	return result, nil
}

// cityLabel renders "City, State", or "City, Country" without a state.
func cityLabel(ch segments.Chapter) string {
	if ch.State != "" {
		return ch.City + ", " + ch.State
	}
	return ch.City + ", " + ch.Country
}
