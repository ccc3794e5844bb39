// Package client provides the Shopify Admin API HTTP transport with
// call-limit aware throttling, retries and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shopify-source/pkg/ratelimit"
)

// Prometheus metrics for Shopify client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_requests_total",
		Help: "Total Shopify requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopify_request_duration_seconds",
		Help:    "Shopify request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_errors_total",
		Help: "Total Shopify errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopify_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopify_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (except 429).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// HeaderAccessToken carries the private app password / access token.
const HeaderAccessToken = "X-Shopify-Access-Token"

// Default Admin API versions.
const (
	DefaultAPIVersion        = "2024-01"
	DefaultGraphQLAPIVersion = "2024-07"
)

// Client is a Shopify Admin API client bound to one shop and API version.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	baseURL     string
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// ShopURL is the shop address, e.g. "https://my-shop.myshopify.com".
	// A missing scheme defaults to https.
	ShopURL string

	// AccessToken is sent as X-Shopify-Access-Token on every request.
	AccessToken string

	// APIVersion selects /admin/api/{version}.
	APIVersion string

	// UserAgent header.
	UserAgent string

	// API selects the call-limit bucket requests are counted against.
	API ratelimit.API

	// RateLimiter is optional; nil disables call-limit throttling.
	RateLimiter *ratelimit.Tracker

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(shopURL, accessToken string) Config {
	return Config{
		ShopURL:        shopURL,
		AccessToken:    accessToken,
		APIVersion:     DefaultAPIVersion,
		UserAgent:      "shopify-source/1.0",
		API:            ratelimit.APIREST,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// New creates a new Shopify client.
func New(cfg Config) (*Client, error) {
	if cfg.ShopURL == "" {
		return nil, fmt.Errorf("shop url is required")
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	baseURL, err := NormalizeShopURL(cfg.ShopURL)
	if err != nil {
		return nil, err
	}

	if cfg.API == "" {
		cfg.API = ratelimit.APIREST
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * cfg.InitialBackoff
	}

	logger := log.With().
		Str("component", "shopify-client").
		Str("api", string(cfg.API)).
		Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: cfg.RateLimiter,
		baseURL:     baseURL,
		config:      cfg,
		logger:      logger,
	}, nil
}

// NormalizeShopURL returns the shop URL with a scheme and without a trailing slash.
func NormalizeShopURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse shop url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("shop url %q has no host", raw)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// BaseURL returns {shop}/admin/api/{version}.
func (c *Client) BaseURL() string {
	return c.baseURL + "/admin/api/" + c.config.APIVersion
}

// URL returns the REST endpoint URL for a resource path, e.g. "products"
// or "shopify_payments/balance/transactions".
func (c *Client) URL(resource string) string {
	return c.BaseURL() + "/" + strings.Trim(resource, "/") + ".json"
}

// GraphQLURL returns the GraphQL endpoint URL.
func (c *Client) GraphQLURL() string {
	return c.BaseURL() + "/graphql.json"
}

// ShopDomain returns the host part of the shop URL.
func (c *Client) ShopDomain() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.baseURL, "https://"), "http://")
}

// APIVersion returns the configured API version.
func (c *Client) APIVersion() string {
	return c.config.APIVersion
}

// Do performs an HTTP request with call-limit throttling, retries and error
// classification. Any status >= 400 left after retries is returned as *APIError;
// the response is only returned on success and must be closed by the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Set headers
	req.Header.Set(HeaderAccessToken, c.config.AccessToken)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Shopify request")

	// Step 2: Execute with retry
	var resp *http.Response
	retryCfg := RetryConfig{
		MaxAttempts:       c.config.MaxRetries + 1,
		InitialBackoff:    c.config.InitialBackoff,
		MaxBackoff:        c.config.MaxBackoff,
		BackoffMultiplier: 2.0,
	}

	err := retryWithBackoff(ctx, retryCfg, c.logger, func(attempt int) error {
		// Step 2a: Wait for call-limit headroom
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx, c.config.API); err != nil {
				return &APIError{ErrorClass: ErrorClassNetwork, Message: "rate limit wait", Err: err}
			}
		}

		// Step 2b: Rewind the body for repeated attempts
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return &APIError{ErrorClass: ErrorClassClient, Message: "rewind request body", Err: err}
			}
			req.Body = body
		}

		r, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			errClass := c.classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &APIError{ErrorClass: errClass, Message: "request failed", Err: reqErr}
		}

		// Step 2c: Update call-limit state from headers
		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			apiErr := c.responseError(r)
			errorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(apiErr.ErrorClass)).
				Msg("Shopify request error")
			return apiErr
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// responseError drains and closes a failed response into an APIError.
func (c *Client) responseError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: c.classifyError(resp, nil),
		Message:    resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}

	if apiErr.ErrorClass == ErrorClassRateLimit {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return apiErr
}

// parseRetryAfter accepts seconds, possibly fractional ("2.0" is what Shopify sends).
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Get performs a GET request to an absolute URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// PostJSON marshals body and POSTs it to an absolute URL.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.Do(req)
}

// ReportThrottleStatus feeds a GraphQL cost report into the rate limiter.
func (c *Client) ReportThrottleStatus(ctx context.Context, status ratelimit.ThrottleStatus) {
	if c.rateLimiter == nil {
		return
	}
	if err := c.rateLimiter.UpdateFromThrottleStatus(ctx, status); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from throttle status")
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
