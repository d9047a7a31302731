package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/rickgao/bm-repricer/internal/model"
)

// APIError represents an error from the Back Market API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backmarket api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Is lets errors.Is(err, model.ErrExternalAPI) match any APIError.
func (e *APIError) Is(target error) bool {
	return target == model.ErrExternalAPI
}

// TransportError is a request that never got an HTTP response: DNS, dial,
// TLS or a dropped connection. It classifies as model.ErrExternalAPI.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "do request: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, model.ErrExternalAPI) match a TransportError.
func (e *TransportError) Is(target error) bool {
	return target == model.ErrExternalAPI
}

// request describes one logical API call.
type request struct {
	route  string // Metrics label, e.g. "listings.update"
	method string
	path   string
	query  url.Values
	body   []byte
	ctype  string
	bucket string // Bucket taken in addition to BucketGlobal
}

// jsonBody marshals v into a request body.
func jsonBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b, nil
}

// acquire takes the global token and, if set, the route's own bucket token.
func (c *Client) acquire(ctx context.Context, bucket string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Acquire(ctx, BucketGlobal, c.acquireTimeout); err != nil {
		return err
	}
	if bucket != "" && bucket != BucketGlobal {
		if err := c.limiter.Acquire(ctx, bucket, c.acquireTimeout); err != nil {
			return err
		}
	}
	return nil
}

// doRequest performs a single rate-limited HTTP request.
func (c *Client) doRequest(ctx context.Context, r request) ([]byte, error) {
	if err := c.acquire(ctx, r.bucket); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	fullURL := c.baseURL + r.path
	if len(r.query) > 0 {
		fullURL += "?" + r.query.Encode()
	}

	var reqBody io.Reader
	if r.body != nil {
		reqBody = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json, application/problem+json")
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}
	if r.body != nil {
		ctype := r.ctype
		if ctype == "" {
			ctype = "application/json"
		}
		req.Header.Set("Content-Type", ctype)
	}
	if c.creds != nil {
		c.creds.SignRequest(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.route, 0, time.Since(start))
		// Our own cancellation is not an upstream failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("do request: %w", ctx.Err())
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.observe(r.route, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, r request) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", r.path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, r)
		if err == nil {
			return body, nil
		}

		lastErr = err

		// Check if error is retryable
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, route, bucket, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, request{
		route:  route,
		method: http.MethodGet,
		path:   path,
		query:  query,
		bucket: bucket,
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// send performs a request with a JSON body and decodes the response into
// result when result is non-nil.
func (c *Client) send(ctx context.Context, route, bucket, method, path string, payload, result any) error {
	b, err := jsonBody(payload)
	if err != nil {
		return err
	}

	body, err := c.doWithRetry(ctx, request{
		route:  route,
		method: method,
		path:   path,
		body:   b,
		bucket: bucket,
	})
	if err != nil {
		return err
	}

	if result == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) observe(route string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(route, status, d)
	}
}
