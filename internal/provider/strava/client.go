// Package strava fetches segment local-legend leaderboards from the Strava
// API.
//
// Each segment takes two requests, one per leaderboard category (overall and
// female), issued concurrently. Auth is a refresh-token exchange whose access
// token is cached by the caller-owned TokenSource.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/albapepper/burrito-league/internal/provider"
	"github.com/albapepper/burrito-league/internal/snapshot"
)

// ErrRateLimited is returned when Strava answers 429. Callers should stop
// issuing requests for the rest of the pass.
var ErrRateLimited = errors.New("strava rate limited")

// TokenExpiryMargin refreshes the access token this long before it expires.
const TokenExpiryMargin = 5 * time.Minute

// Category is a local-legend leaderboard category.
type Category string

const (
	CategoryOverall Category = "overall"
	CategoryFemale  Category = "female"
)

// Leaderboard is the combined reading of both categories for one segment.
type Leaderboard struct {
	SegmentID     int64           `json:"segmentId"`
	TotalEfforts  int             `json:"totalEfforts"`
	TotalAthletes int             `json:"totalAthletes"`
	TotalDistance string          `json:"totalDistance"`
	Male          snapshot.Leader `json:"maleLeader"`
	Female        snapshot.Leader `json:"femaleLeader"`
}

// TokenConfig holds the app credentials for the refresh-token exchange.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	HTTPClient   *http.Client // optional, used for the token endpoint
}

// NewTokenSource returns a token source that exchanges the refresh token for
// an access token and reuses it until TokenExpiryMargin before expiry. The
// returned value is the token cache; share it for the lifetime of a process
// or command rather than creating one per request.
func NewTokenSource(ctx context.Context, cfg TokenConfig) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return oauth2.ReuseTokenSourceWithExpiry(nil, src, TokenExpiryMargin)
}

// Client is the HTTP client for the local-legend endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Strava client. requestsPerMinute <= 0 disables the
// client-side limiter.
func NewClient(baseURL string, tokens oauth2.TokenSource, requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := oauth2.NewClient(context.Background(), tokens)
	httpClient.Timeout = 30 * time.Second

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
	if requestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 2)
	}
	return c
}

// localLegendResponse is one element of the local_legend array.
type localLegendResponse struct {
	Category    string `json:"category"`
	LocalLegend *struct {
		AthleteID        int64       `json:"athlete_id"`
		Title            string      `json:"title"`
		Profile          string      `json:"profile"`
		MayorEffortCount interface{} `json:"mayor_effort_count"`
	} `json:"local_legend"`
	OverallEfforts *struct {
		TotalAthletes interface{} `json:"total_athletes"`
		TotalEfforts  interface{} `json:"total_efforts"`
		TotalDistance interface{} `json:"total_distance"`
	} `json:"overall_efforts"`
}

// Fetch returns the leaderboard for a segment, or nil with no error when
// Strava has no local-legend data for it. A 429 from either request yields
// an error wrapping ErrRateLimited, even when the other request failed
// differently. A failed female request only empties the female slot.
func (c *Client) Fetch(ctx context.Context, segmentID int64) (*Leaderboard, error) {
	var (
		overall, female       *localLegendResponse
		overallErr, femaleErr error
	)

	// Neither request cancels the other; both statuses are needed to detect
	// a 429.
	var g errgroup.Group
	g.Go(func() error {
		overall, overallErr = c.localLegend(ctx, segmentID, CategoryOverall)
		return nil
	})
	g.Go(func() error {
		female, femaleErr = c.localLegend(ctx, segmentID, CategoryFemale)
		return nil
	})
	_ = g.Wait()

	switch {
	case errors.Is(overallErr, ErrRateLimited):
		return nil, overallErr
	case errors.Is(femaleErr, ErrRateLimited):
		return nil, femaleErr
	case overallErr != nil:
		return nil, overallErr
	}
	if femaleErr != nil {
		c.logger.Warn("Female leaderboard unavailable",
			"segment_id", segmentID, "error", femaleErr)
		female = nil
	}

	if overall == nil {
		return nil, nil
	}
	return combine(segmentID, overall, female), nil
}

// combine merges both categories. When the overall legend is the same
// athlete as the female legend, Strava is hiding the top man behind her, so
// the male slot stays empty rather than showing her twice.
func combine(segmentID int64, overall, female *localLegendResponse) *Leaderboard {
	lb := &Leaderboard{SegmentID: segmentID}
	if e := overall.OverallEfforts; e != nil {
		lb.TotalEfforts = provider.CountOrZero(e.TotalEfforts)
		lb.TotalAthletes = provider.CountOrZero(e.TotalAthletes)
		if s, ok := e.TotalDistance.(string); ok {
			lb.TotalDistance = s
		} else if n, ok := provider.ParseCount(e.TotalDistance); ok {
			lb.TotalDistance = fmt.Sprintf("%d mi", n)
		}
	}

	overallIsFemale := overall.LocalLegend != nil && female != nil && female.LocalLegend != nil &&
		overall.LocalLegend.AthleteID == female.LocalLegend.AthleteID

	if l := overall.LocalLegend; l != nil && !overallIsFemale {
		lb.Male = snapshot.Leader{
			Name:       l.Title,
			ProfilePic: l.Profile,
			Efforts:    provider.CountOrZero(l.MayorEffortCount),
		}
	}
	if female != nil && female.LocalLegend != nil {
		l := female.LocalLegend
		lb.Female = snapshot.Leader{
			Name:       l.Title,
			ProfilePic: l.Profile,
			Efforts:    provider.CountOrZero(l.MayorEffortCount),
		}
	}
	return lb
}

// localLegend performs one category request. Returns nil, nil for an empty
// payload.
func (c *Client) localLegend(ctx context.Context, segmentID int64, category Category) (*localLegendResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	params := url.Values{"categories[]": {string(category)}}
	u := fmt.Sprintf("%s/segments/%d/local_legend?%s", c.baseURL, segmentID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("token refresh: %w", ErrRateLimited)
		}
		return nil, fmt.Errorf("http request segment %d %s: %w", segmentID, category, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("segment %d %s: %w", segmentID, category, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("strava segment %d %s returned %d: %s",
			segmentID, category, resp.StatusCode, truncate(body, 200))
	}

	var result []localLegendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return &result[0], nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
