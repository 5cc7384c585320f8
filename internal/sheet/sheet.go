// Package sheet fetches and parses the chapter spreadsheet's CSV export.
//
// Columns are positional: segment name, city, state, country. The first row
// is a header. Quoted fields may span lines.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultCountry is assumed when the country column is empty.
const DefaultCountry = "USA"

// Record is one chapter row as entered in the sheet.
type Record struct {
	SegmentName string `json:"segmentName"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
}

// Client downloads the sheet export.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

// NewClient creates a sheet client for the given CSV export URL.
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
		logger:     logger,
	}
}

// Fetch downloads and parses the sheet.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("sheet returned %d: %s", resp.StatusCode, body)
	}

	records, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Fetched chapter sheet", "rows", len(records))
	return records, nil
}

// Parse reads CSV rows into records, skipping the header, blank rows and
// rows without a city.
func Parse(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var (
		records []Record
		header  = true
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sheet csv: %w", err)
		}
		if blank(row) {
			continue
		}
		if header {
			header = false
			continue
		}

		city := column(row, 1)
		if city == "" {
			continue
		}
		country := column(row, 3)
		if country == "" {
			country = DefaultCountry
		}
		records = append(records, Record{
			SegmentName: column(row, 0),
			City:        city,
			State:       column(row, 2),
			Country:     country,
		})
	}
	return records, nil
}

func column(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
