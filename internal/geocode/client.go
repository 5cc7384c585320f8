// Package geocode resolves chapter cities to coordinates for the dashboard
// globe. Lookups go to a Nominatim-compatible search endpoint, spaced at
// least MinInterval apart as its usage policy requires.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/albapepper/burrito-league/internal/location"
)

// MinInterval is the minimum spacing between two geocoder requests.
const MinInterval = 1100 * time.Millisecond

// countryCodes narrows searches to one country when the chapter's country
// is recognized. Keys are location.NormalizeCountry outputs.
var countryCodes = map[string]string{
	"USA":   "us",
	"CAN":   "ca",
	"AUS":   "au",
	"NZ":    "nz",
	"MEX":   "mx",
	"CHILE": "cl",
}

// Point is a latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Client queries the search endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a geocoder. baseURL is the service root, e.g.
// "https://nominatim.openstreetmap.org".
func NewClient(baseURL, userAgent string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(MinInterval), 1),
		logger:     logger,
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Query builds the free-text search string: "City, State, Country", with an
// empty state left out.
func Query(city, state, country string) string {
	parts := []string{strings.TrimSpace(city)}
	if s := strings.TrimSpace(state); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, strings.TrimSpace(country))
	return strings.Join(parts, ", ")
}

// Lookup geocodes one city. It returns nil with no error when the service
// has no match.
func (c *Client) Lookup(ctx context.Context, city, state, country string) (*Point, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := Query(city, state, country)
	params := url.Values{
		"q":              {q},
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"0"},
	}
	if code, ok := countryCodes[location.NormalizeCountry(country)]; ok {
		params.Set("countrycodes", code)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", q, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode %q returned %d: %s", q, resp.StatusCode, truncate(body, 200))
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		c.logger.Debug("No geocoding results", "query", q)
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lon %q: %w", results[0].Lon, err)
	}
	return &Point{Lat: lat, Lng: lng}, nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
