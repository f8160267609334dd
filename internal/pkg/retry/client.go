package retry

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *Client satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps an HTTPDoer with retry logic using exponential backoff and jitter.
type Client struct {
	client HTTPDoer
	policy Policy
}

// NewClient creates a Client that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request (default 3).
func NewClient(client HTTPDoer, maxRetries int) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	p := DefaultPolicy()
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	}
	return &Client{client: client, policy: p}
}

// WithPolicy replaces the backoff policy (tests shorten the delays).
func (c *Client) WithPolicy(p Policy) *Client {
	c.policy = p
	return c
}

// Do executes the HTTP request with retry logic.
// It retries on retryable status codes (429, 500, 502, 503, 504) and
// transient network/timeout errors. It does NOT retry on client errors
// or context cancellation. On the final attempt, it returns the response
// as-is so the caller can inspect the status code and body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("retry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := c.policy.Delay(attempt)
			logger.Debug("http retry", "attempt", attempt, "max", c.policy.MaxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", delay)

			if err := Sleep(req.Context(), delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !RetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt == c.policy.MaxRetries {
			return resp, nil
		}

		// Drain body for connection reuse, then retry
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("retry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// RetryableStatus returns true if the HTTP status code indicates a
// transient server error: 429, 500, 502, 503, 504.
func RetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
