package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/metrics"
	"github.com/ignite/klaviyo-webflow/internal/pkg/httpretry"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// SubmitOptions are the per-form request settings.
type SubmitOptions struct {
	APIVersion string
	Debug      bool
	MaxRetries int
}

// Client submits subscriptions to the vendor API.
type Client struct {
	revisions  *Revisions
	eventsURL  string
	httpClient httpretry.HTTPDoer
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        *logger.Entry
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the transport used for each attempt.
func WithHTTPClient(doer httpretry.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = doer }
}

// WithRevisions replaces the revision table.
func WithRevisions(r *Revisions) Option {
	return func(c *Client) { c.revisions = r }
}

// WithEventsEndpoint overrides the tracking events endpoint.
func WithEventsEndpoint(u string) Option {
	return func(c *Client) { c.eventsURL = u }
}

// WithBaseDelay sets the first retry delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a client with the built-in revision table and a 30s
// HTTP timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		revisions:  DefaultRevisions(),
		eventsURL:  DefaultEventsEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseDelay:  httpretry.DefaultBaseDelay,
		log:        logger.Component("klaviyo"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client from the klaviyo config section,
// layering configured revisions over the built-in table.
func NewClientFromConfig(cfg config.KlaviyoConfig, opts ...Option) *Client {
	revisions := DefaultRevisions()
	for label, rc := range cfg.Revisions {
		revisions = revisions.With(label, Revision{Revision: rc.Revision, Endpoint: rc.Endpoint})
	}
	base := []Option{
		WithRevisions(revisions),
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}),
		WithBaseDelay(cfg.BaseDelay()),
	}
	return NewClient(append(base, opts...)...)
}

// Revisions returns the client's revision table.
func (c *Client) Revisions() *Revisions { return c.revisions }

// Submit posts the payload to the subscriptions endpoint. It returns nil on
// 202 Accepted, *APIError for any other final status, or a wrapped transport
// error when every attempt failed on the network.
func (c *Client) Submit(ctx context.Context, payload *SubscriptionPayload, apiKey string, opts SubmitOptions) error {
	if apiKey == "" {
		return ErrMissingAPIKey
	}

	rev := c.revisions.Resolve(opts.APIVersion)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("klaviyo: marshaling payload: %w", err)
	}

	if opts.Debug {
		c.log.Verbatim().Info("submitting to Klaviyo", "revision", rev.Revision, "payload", string(body))
	}
	return c.post(ctx, rev.Endpoint, rev.Revision, apiKey, body, opts.MaxRetries)
}

// post sends body to endpoint with the retry policy and maps the final
// response: 202 is success, anything else becomes an *APIError.
func (c *Client) post(ctx context.Context, rawURL, revision, apiKey string, body []byte, maxRetries int) error {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("klaviyo: parse endpoint %q: %w", rawURL, err)
	}
	q := endpoint.Query()
	q.Set("company_id", apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("klaviyo: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("revision", revision)

	retryOpts := []httpretry.Option{httpretry.WithBaseDelay(c.baseDelay)}
	if c.sleep != nil {
		retryOpts = append(retryOpts, httpretry.WithSleep(c.sleep))
	}
	rc := httpretry.NewRetryClient(countingDoer{c.httpClient}, maxRetries, retryOpts...)

	resp, err := rc.Do(req)
	if err != nil {
		return fmt.Errorf("klaviyo: executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil
	}

	raw, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &apiErr.Body); err != nil {
		apiErr.Body = syntheticBody(resp.StatusCode)
	}
	return apiErr
}

// countingDoer records every attempt's status.
type countingDoer struct {
	next httpretry.HTTPDoer
}

func (d countingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.next.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(0)
		return nil, err
	}
	metrics.RecordAPIRequest(resp.StatusCode)
	return resp, nil
}
