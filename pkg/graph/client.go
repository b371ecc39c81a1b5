// Package graph provides the Microsoft Graph client that reads a mailbox's
// sent-item history: client-credentials token acquisition, total item count,
// and offset-paginated message listing with optional shared throttling and
// page caching.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/cache"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/logging"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/pipeline"
	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/ratelimit"
)

// Prometheus metrics for Graph requests.
var (
	graphRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_graph_requests_total",
		Help: "Total Graph requests by endpoint and status",
	}, []string{"endpoint", "status"})

	graphRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outlook_sync_graph_request_duration_seconds",
		Help:    "Graph request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	graphErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_graph_errors_total",
		Help: "Total Graph errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the production Graph API root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultLoginBaseURL is the production Entra token endpoint root.
	DefaultLoginBaseURL = "https://login.microsoftonline.com"

	// defaultScope requests all application permissions granted to the
	// client registration.
	defaultScope = "https://graph.microsoft.com/.default"
)

// Config holds the Graph client configuration.
type Config struct {
	// Entra application credentials.
	TenantID     string
	ClientID     string
	ClientSecret string

	// Mailbox is the address whose SentItems folder is read.
	Mailbox string

	// BaseURL overrides the Graph API root (for tests).
	BaseURL string

	// LoginBaseURL overrides the token endpoint root (for tests).
	LoginBaseURL string

	// Timeout per HTTP request. Default 30s.
	Timeout time.Duration

	// Gate is the optional shared throttle gate. Nil allows everything.
	Gate *ratelimit.Gate

	// PageCache is the optional page cache. Nil disables caching.
	PageCache *cache.Manager
}

// Client reads the sent-item history of one mailbox. It implements the
// pipeline Source interface.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger

	// token is acquired once by Authenticate and immutable afterwards.
	token string
}

// New creates a Graph client.
func New(cfg Config) (*Client, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("tenant id, client id and client secret are required")
	}
	if cfg.Mailbox == "" {
		return nil, fmt.Errorf("mailbox address is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.LoginBaseURL == "" {
		cfg.LoginBaseURL = DefaultLoginBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logging.NewLogger("graph"),
	}, nil
}

// Authenticate performs the client-credentials exchange and stores the
// access token for the run. The token is not refreshed mid-run.
func (c *Client) Authenticate(ctx context.Context) error {
	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.LoginBaseURL, c.cfg.TenantID),
		Scopes:       []string{defaultScope},
	}

	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient))
	if err != nil {
		return fmt.Errorf("client credentials exchange: %w", err)
	}

	c.token = tok.AccessToken
	c.logger.Info().Str("mailbox", c.cfg.Mailbox).Msg("Access token acquired")
	return nil
}

// TotalCount returns the total number of messages in the SentItems folder.
func (c *Client) TotalCount(ctx context.Context) (int, error) {
	body, err := c.get(ctx, c.folderEndpoint(), nil)
	if err != nil {
		return 0, err
	}

	var folder folderResponse
	if err := json.Unmarshal(body, &folder); err != nil {
		return 0, fmt.Errorf("decode folder response: %w", err)
	}
	return folder.TotalItemCount, nil
}

// ListPage returns the messages in [offset, offset+pageSize). Cached pages
// are served without touching Graph; a fresh page is cached on success.
func (c *Client) ListPage(ctx context.Context, offset, pageSize int) ([]pipeline.Message, error) {
	key := cache.Key{Mailbox: c.cfg.Mailbox, Offset: offset, PageSize: pageSize}

	if data, err := c.cfg.PageCache.Get(ctx, key); err == nil {
		c.logger.Debug().Int("offset", offset).Msg("Page served from cache")
		return decodePage(data)
	}

	query := url.Values{
		"$top":    {strconv.Itoa(pageSize)},
		"$skip":   {strconv.Itoa(offset)},
		"$select": {selectFields},
	}

	body, err := c.get(ctx, c.folderEndpoint()+"/messages", query)
	if err != nil {
		return nil, err
	}

	if err := c.cfg.PageCache.Set(ctx, key, body); err != nil {
		c.logger.Warn().Err(err).Int("offset", offset).Msg("Failed to cache page")
	}

	return decodePage(body)
}

func (c *Client) folderEndpoint() string {
	return fmt.Sprintf("/users/%s/mailFolders/SentItems", url.PathEscape(c.cfg.Mailbox))
}

// get performs one authorized GET with throttle gating and classification.
// No retries here: retry policy belongs to the pipeline's page fetcher.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	if !c.cfg.Gate.Allow(ctx) {
		graphErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, ErrThrottled
	}

	u := c.cfg.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	graphRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		graphErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		graphRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &Error{Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	c.cfg.Gate.UpdateFromResponse(ctx, resp)
	graphRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		class := ClassifyStatus(resp.StatusCode)
		graphErrorsTotal.WithLabelValues(string(class)).Inc()

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Graph request error")

		return nil, &Error{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    string(snippet),
		}
	}

	return io.ReadAll(resp.Body)
}
