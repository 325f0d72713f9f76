// Package httpretry provides an HTTP client with automatic retry logic and
// deterministic exponential backoff for calls to the vendor API.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 300 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
)

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff.
// The delay before retry n (1-based) is baseDelay * 2^(n-1), capped at maxDelay.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	retryable  func(status int) bool
}

// Option customizes a RetryClient.
type Option func(*RetryClient)

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(rc *RetryClient) {
		if d > 0 {
			rc.baseDelay = d
		}
	}
}

// WithMaxDelay caps a single backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(rc *RetryClient) {
		if d > 0 {
			rc.maxDelay = d
		}
	}
}

// WithSleep replaces the timer-based wait. Tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(rc *RetryClient) {
		if fn != nil {
			rc.sleep = fn
		}
	}
}

// WithRetryableStatus overrides which response statuses trigger a retry.
func WithRetryableStatus(fn func(status int) bool) Option {
	return func(rc *RetryClient) {
		if fn != nil {
			rc.retryable = fn
		}
	}
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
// maxRetries is the number of retry attempts after the initial request (default 3).
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
		sleep:      sleepContext,
		retryable:  IsRetryableStatus,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// MaxRetries reports the configured retry ceiling.
func (rc *RetryClient) MaxRetries() int { return rc.maxRetries }

// Do executes the HTTP request with retry logic.
// Network errors and retryable statuses are retried; any other response is
// returned immediately. On the final attempt the response is returned as-is
// so the caller can inspect the status code and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
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
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.Delay(attempt)
			logger.Debug("httpretry: retrying request",
				"attempt", attempt, "max_retries", rc.maxRetries,
				"host", req.URL.Host, "path", req.URL.Path, "delay", delay)

			if err := rc.sleep(req.Context(), delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !rc.retryable(resp.StatusCode) {
			return resp, nil
		}

		if attempt == rc.maxRetries {
			return resp, nil
		}

		// Drain for connection reuse before the next attempt.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// Delay returns the backoff duration before the given retry attempt (1-based).
func (rc *RetryClient) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := rc.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= rc.maxDelay {
			return rc.maxDelay
		}
	}
	if d > rc.maxDelay {
		return rc.maxDelay
	}
	return d
}

// IsRetryableStatus reports whether a status indicates a transient failure:
// 408, 429 and every 5xx. Other statuses (including vendor validation 4xx
// responses) are terminal.
func IsRetryableStatus(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout:
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500 && statusCode <= 599:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
