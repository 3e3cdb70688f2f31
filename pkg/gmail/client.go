// Package gmail provides the Gmail API client: profile, labels and
// message lookups, batched multi-gets over the multipart protocol, and
// resumable listing streams for messages and history.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkrein/gmail-client/pkg/auth"
	"github.com/mkrein/gmail-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Gmail client operations.
var (
	gmailRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmail_requests_total",
		Help: "Total Gmail API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	gmailRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmail_request_duration_seconds",
		Help:    "Gmail API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	gmailBatchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmail_batch_outcomes_total",
		Help: "Total batch sub-request outcomes by classification",
	}, []string{"outcome"})

	gmailPageFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmail_page_fetches_total",
		Help: "Total listing page fetches by endpoint",
	}, []string{"endpoint"})
)

// Default API endpoints.
const (
	DefaultBaseURL  = "https://www.googleapis.com/gmail/v1"
	DefaultBatchURL = "https://www.googleapis.com/batch/gmail/v1"
)

// APIError is an unexpected HTTP status from the Gmail API, carrying a
// bounded preview of the response body.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client is the Gmail API client.
type Client struct {
	httpClient *http.Client
	auth       *auth.Authenticator
	limiter    ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Auth is the token gate consulted before every API call (REQUIRED).
	Auth *auth.Authenticator

	// HTTPClient overrides the transport (mainly for testing).
	HTTPClient *http.Client

	// BaseURL and BatchURL override the Google API endpoints.
	BaseURL  string
	BatchURL string

	// RateLimit caps outbound requests per second. Zero disables the
	// client-side limiter.
	RateLimit int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(authenticator *auth.Authenticator) Config {
	return Config{
		Auth:      authenticator,
		BaseURL:   DefaultBaseURL,
		BatchURL:  DefaultBatchURL,
		RateLimit: 10,
	}
}

// New creates a new Gmail client.
func New(cfg Config) (*Client, error) {
	if cfg.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BatchURL == "" {
		cfg.BatchURL = DefaultBatchURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit)
	}

	logger := log.With().Str("component", "gmail-client").Logger()

	return &Client{
		httpClient: httpClient,
		auth:       cfg.Auth,
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// do gates, authorizes, and executes one API request, recording
// metrics under endpoint.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.auth.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.auth.AccessToken())

	startTime := time.Now()
	defer func() {
		gmailRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Gmail request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		gmailRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, err
	}

	gmailRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	return resp, nil
}

// getJSON performs a GET against the API base URL and decodes the JSON
// response into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(ctx, endpoint, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	return nil
}

// postJSON performs a POST with a JSON body; the response body is
// discarded on success.
func (c *Client) postJSON(ctx context.Context, endpoint string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+endpoint, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, endpoint, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(endpoint, resp)
	}

	return nil
}

// apiError builds an APIError with a bounded body preview.
func apiError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// Profile fetches the authenticated mailbox profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.getJSON(ctx, "/users/me/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// LabelsList fetches all labels of the mailbox.
func (c *Client) LabelsList(ctx context.Context) (Labels, error) {
	var page labelsPage
	if err := c.getJSON(ctx, "/users/me/labels", nil, &page); err != nil {
		return nil, err
	}
	if page.Labels == nil {
		return nil, fmt.Errorf(`missing "labels" in response`)
	}
	return page.Labels, nil
}

// MessageGet fetches one message in the metadata format.
func (c *Client) MessageGet(ctx context.Context, id string) (*Message, error) {
	var m Message
	q := url.Values{"format": {"metadata"}}
	if err := c.getJSON(ctx, "/users/me/messages/"+id, q, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageGetMin fetches one message in the minimal format.
func (c *Client) MessageGetMin(ctx context.Context, id string) (*MessageMinimal, error) {
	var m MessageMinimal
	q := url.Values{"format": {"minimal"}}
	if err := c.getJSON(ctx, "/users/me/messages/"+id, q, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageGetRaw fetches one message in the raw format and returns the
// decoded RFC 2822 bytes.
func (c *Client) MessageGetRaw(ctx context.Context, id string) ([]byte, error) {
	var m MessageRaw
	q := url.Values{"format": {"raw"}}
	if err := c.getJSON(ctx, "/users/me/messages/"+id, q, &m); err != nil {
		return nil, err
	}
	return m.Decode()
}

// ThreadRemoveLabel removes a label from every message of a thread.
func (c *Client) ThreadRemoveLabel(ctx context.Context, threadID, labelID string) error {
	body := struct {
		RemoveLabelIDs []string `json:"removeLabelIds"`
	}{
		RemoveLabelIDs: []string{labelID},
	}
	return c.postJSON(ctx, "/users/me/threads/"+threadID+"/modify", body)
}
