package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/bm-repricer/internal/auth"
)

// Bucket names consulted by the client.
const (
	BucketGlobal      = "global"
	BucketPricing     = "pricing"
	BucketOrders      = "orders"
	BucketCompetitors = "competitors"
)

// DefaultBuybackPath is the prefix of the buyback endpoints.
const DefaultBuybackPath = "/ws/buyback/v1"

// Limiter is the subset of ratelimit.Limiter the client needs.
type Limiter interface {
	Acquire(ctx context.Context, bucket string, timeout time.Duration) error
}

// RequestObserver receives per-request outcomes. Implemented by internal/metrics.
type RequestObserver interface {
	ObserveRequest(route string, status int, d time.Duration)
}

// Client provides access to the Back Market REST API.
type Client struct {
	baseURL     string
	buybackPath string
	language    string
	creds       *auth.Credentials
	httpClient  *http.Client
	logger      *slog.Logger

	limiter        Limiter
	acquireTimeout time.Duration
	observer       RequestObserver

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. creds may be nil for unauthenticated
// endpoints (tests).
func NewClient(baseURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		buybackPath: DefaultBuybackPath,
		creds:       creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLimiter gates every request on the limiter. acquireTimeout bounds the
// wait for each token; zero waits until the request context is done.
func WithLimiter(l Limiter, acquireTimeout time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = l
		c.acquireTimeout = acquireTimeout
	}
}

// WithBuybackPath overrides the buyback endpoint prefix.
func WithBuybackPath(path string) ClientOption {
	return func(c *Client) {
		c.buybackPath = path
	}
}

// WithLanguage sets the Accept-Language header (e.g. "fr-fr") sent with
// every request.
func WithLanguage(lang string) ClientOption {
	return func(c *Client) {
		c.language = lang
	}
}

// WithObserver sets the request metrics observer.
func WithObserver(o RequestObserver) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}
