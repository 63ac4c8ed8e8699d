package scheduler

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TabularSource yields rows of a billing sheet, header first.
type TabularSource interface {
	Fetch(ctx context.Context) ([][]string, error)
}

// CSVSource downloads a CSV document, such as a published spreadsheet export.
type CSVSource struct {
	URL    string
	Client *http.Client
}

// NewCSVSource creates a source for url with a bounded HTTP client.
func NewCSVSource(url string, timeout time.Duration) *CSVSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CSVSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Fetch implements TabularSource.
func (c *CSVSource) Fetch(ctx context.Context) ([][]string, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("no source url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch sheet: unexpected status %s", resp.Status)
	}
	return ReadCSV(resp.Body)
}

// ReadCSV parses CSV rows, tolerating ragged lines and a UTF-8 byte order mark.
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}
