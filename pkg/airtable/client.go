// Package airtable provides the destination record store client: full
// cursor-paginated listing plus chunked batch inserts and updates, with
// optional shared Retry-After throttling.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/logging"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/pipeline"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/ratelimit"
)

// Prometheus metrics for Airtable requests.
var (
	airtableRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_airtable_requests_total",
		Help: "Total Airtable requests by method and status",
	}, []string{"method", "status"})

	airtableRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outlook_sync_airtable_request_duration_seconds",
		Help:    "Airtable request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})
)

// ErrThrottled is returned when the shared throttle gate holds a request
// back because a Retry-After deadline is still pending.
var ErrThrottled = errors.New("request blocked: throttle deadline pending")

const (
	// DefaultBaseURL is the production Airtable API root.
	DefaultBaseURL = "https://api.airtable.com/v0"

	// MaxBatchSize is Airtable's hard limit per write request.
	MaxBatchSize = 10

	// listPageSize is the records-per-request limit when listing.
	listPageSize = 100
)

// Config holds the Airtable client configuration.
type Config struct {
	// APIKey is the bearer token.
	APIKey string

	// BaseID and Table identify the destination table.
	BaseID string
	Table  string

	// BaseURL overrides the API root (for tests).
	BaseURL string

	// Timeout per HTTP request. Default 30s.
	Timeout time.Duration

	// Gate is the optional shared throttle gate. Nil allows everything.
	Gate *ratelimit.Gate
}

// Client is the destination record store. It implements the pipeline
// Destination interface.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

// New creates an Airtable client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, fmt.Errorf("base id and table name are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logging.NewLogger("airtable"),
	}, nil
}

// ListRecords returns the full table snapshot, following the continuation
// cursor until the API stops returning one.
func (c *Client) ListRecords(ctx context.Context) ([]pipeline.Record, error) {
	var records []pipeline.Record
	offset := ""

	for {
		query := url.Values{"pageSize": {strconv.Itoa(listPageSize)}}
		if offset != "" {
			query.Set("offset", offset)
		}

		body, err := c.do(ctx, http.MethodGet, query, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode record page: %w", err)
		}

		for _, raw := range page.Records {
			records = append(records, raw.toRecord())
		}

		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

// Insert creates up to MaxBatchSize new rows in one request.
func (c *Client) Insert(ctx context.Context, records []pipeline.Fields) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxBatchSize {
		return fmt.Errorf("insert batch of %d exceeds limit of %d", len(records), MaxBatchSize)
	}

	payload := recordsPayload{Records: make([]writeRecord, 0, len(records))}
	for _, f := range records {
		payload.Records = append(payload.Records, writeRecord{Fields: insertFields(f)})
	}

	_, err := c.do(ctx, http.MethodPost, nil, &payload)
	return err
}

// Update patches up to MaxBatchSize existing rows in one request, writing
// only the tracked fields.
func (c *Client) Update(ctx context.Context, records []pipeline.Update) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxBatchSize {
		return fmt.Errorf("update batch of %d exceeds limit of %d", len(records), MaxBatchSize)
	}

	payload := recordsPayload{Records: make([]writeRecord, 0, len(records))}
	for _, u := range records {
		payload.Records = append(payload.Records, writeRecord{ID: u.ID, Fields: updateFields(u)})
	}

	_, err := c.do(ctx, http.MethodPatch, nil, &payload)
	return err
}

// do performs one authorized request against the table endpoint.
func (c *Client) do(ctx context.Context, method string, query url.Values, payload *recordsPayload) ([]byte, error) {
	if !c.cfg.Gate.Allow(ctx) {
		return nil, ErrThrottled
	}

	u := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.BaseID, url.PathEscape(c.cfg.Table))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	airtableRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		airtableRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("airtable request: %w", err)
	}
	defer resp.Body.Close()

	c.cfg.Gate.UpdateFromResponse(ctx, resp)
	airtableRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Str("method", method).
			Int("status", resp.StatusCode).
			Msg("Airtable request error")
		return nil, fmt.Errorf("airtable %s returned status %d: %s", method, resp.StatusCode, snippet)
	}

	return io.ReadAll(resp.Body)
}
