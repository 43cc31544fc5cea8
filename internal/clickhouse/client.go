// Package clickhouse is a thin HTTP client for the analytical store: bulk CSV
// inserts, checkpoint reads, and administrative statements. Transport failures
// (non-2xx, timeout, connection refused) always surface as errors; retry is
// owned by the task queue, never by this client.
package clickhouse

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/openedx/platform-plugin-aspects/internal/config"
)

// StatusError is returned for any non-2xx response from ClickHouse.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("clickhouse returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to one ClickHouse HTTP endpoint and database.
type Client struct {
	baseURL    string
	username   string
	password   string
	database   string
	httpClient *http.Client
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.ClickHouseConfig) *Client {
	return &Client{
		baseURL:    cfg.URL,
		username:   cfg.Username,
		password:   cfg.Password,
		database:   cfg.Database,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// BulkInsert POSTs rows as headerless CSV into the named table. Columns must
// match the serializer's wire order. A failed batch aborts; nothing already
// sent is rolled back.
func (c *Client) BulkInsert(ctx context.Context, table string, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	var body bytes.Buffer
	writer := csv.NewWriter(&body)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to encode CSV row for table %s: %w", table, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV batch for table %s: %w", table, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) FORMAT CSV", table, strings.Join(columns, ","))
	_, err := c.do(ctx, http.MethodPost, query, &body)
	if err != nil {
		return fmt.Errorf("failed bulk insert of %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// LastDumpedTimestamp reads the checkpoint for one entity: the most recent
// timestamp the store has recorded for its unique key. Returns "" when the
// entity has never been dumped. Read-only; safe to call repeatedly.
func (c *Client) LastDumpedTimestamp(ctx context.Context, table, timestampField, uniqueKey, id string) (string, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s FINAL WHERE %s = '%s' ORDER BY %s DESC LIMIT 1",
		timestampField, table, uniqueKey, escapeString(id), timestampField,
	)
	body, err := c.do(ctx, http.MethodGet, query, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch last dumped timestamp for %s=%s in %s: %w", uniqueKey, id, table, err)
	}
	return strings.TrimSpace(body), nil
}

// Execute runs an arbitrary statement, e.g. the retirement deletes.
func (c *Client) Execute(ctx context.Context, query string) error {
	if _, err := c.do(ctx, http.MethodPost, query, nil); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, query string, body io.Reader) (string, error) {
	params := url.Values{}
	params.Set("database", c.database)
	params.Set("query", query)
	requestURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request to clickhouse: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call clickhouse at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}
	return string(responseBody), nil
}

// escapeString escapes single quotes and backslashes for interpolation into a
// ClickHouse string literal.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
