// Package sheets implements the student directory lookup over the Google
// Sheets API. The school keeps the authoritative student roster in a
// spreadsheet (number in column A, first name in column C, last name in
// column D); registration resolves the submitted number against it.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/denemerapor/exam-report-hub/pkg/circuitbreaker"
	"github.com/denemerapor/exam-report-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Sheets lookup client.
type ClientConfig struct {
	// BaseURL is the Sheets API base URL (default: https://sheets.googleapis.com)
	BaseURL string

	// APIKey authenticates requests to the values endpoint.
	APIKey string

	// SpreadsheetID identifies the roster spreadsheet.
	SpreadsheetID string

	// ReadRange is the A1-notation range holding the roster (e.g. "liste!A:D").
	ReadRange string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(apiKey, spreadsheetID string) ClientConfig {
	return ClientConfig{
		BaseURL:       "https://sheets.googleapis.com",
		APIKey:        apiKey,
		SpreadsheetID: spreadsheetID,
		ReadRange:     "liste!A:D",
		Timeout:       15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Roster column indexes (0-based) inside the configured range.
const (
	colNumber    = 0 // column A: student number
	colFirstName = 2 // column C: first name
	colLastName  = 3 // column D: last name
)

// Client looks up student names on the roster spreadsheet. Calls are guarded
// by a circuit breaker and retried with backoff: the lookup sits on the
// critical registration path but the upstream quota is limited.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
}

// NewClient creates a new Sheets lookup client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://sheets.googleapis.com"
	}
	if config.ReadRange == "" {
		config.ReadRange = "liste!A:D"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	logger := config.Logger
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
		breaker: circuitbreaker.SheetsBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.SheetsRetrier(),
	}
}

// valuesResponse mirrors the Sheets values.get response body.
type valuesResponse struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// StudentNameByNumber resolves a student number to "FirstName LastName".
// Returns "" (and a nil error) when the number is not on the roster.
func (c *Client) StudentNameByNumber(ctx context.Context, number string) (string, error) {
	want := strings.TrimSpace(number)
	if want == "" {
		return "", nil
	}

	var rows [][]string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			rows, err = c.fetchRoster(ctx)
			return err
		})
	})
	if err != nil {
		return "", fmt.Errorf("sheets lookup: %w", err)
	}

	for _, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) != want {
			continue
		}
		first, last := "", ""
		if len(row) > colFirstName {
			first = row[colFirstName]
		}
		if len(row) > colLastName {
			last = row[colLastName]
		}
		return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)), nil
	}

	return "", nil
}

// fetchRoster performs one values.get call and returns the raw rows.
func (c *Client) fetchRoster(ctx context.Context) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.config.BaseURL,
		url.PathEscape(c.config.SpreadsheetID),
		url.PathEscape(c.config.ReadRange),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	q := req.URL.Query()
	q.Set("key", c.config.APIKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retry.Retryable(fmt.Errorf("sheets api status %d", resp.StatusCode))
	default:
		return nil, retry.Permanent(fmt.Errorf("sheets api status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var vr valuesResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}

	return vr.Values, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
