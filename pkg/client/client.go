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

	"github.com/google/uuid"
)

// APIError is a non-2xx reply from leadhooksd.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("leadhooks: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("leadhooks: HTTP %d: %s", e.StatusCode, e.Message)
}

// CreatedSubscription is returned once by CreateSubscription. Secret is never
// retrievable again.
type CreatedSubscription struct {
	Subscription Subscription `json:"subscription"`
	Secret       string       `json:"secret"`
}

// TestResult is the outcome of a single test delivery.
type TestResult struct {
	Success      bool            `json:"success"`
	StatusCode   int             `json:"status_code"`
	ResponseTime int64           `json:"response_time"`
	Error        string          `json:"error"`
	Delivery     DeliveryAttempt `json:"delivery"`
}

// Client is the leadhooks SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an API token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the leadhooksd instance at base.
//
//	c, err := client.New("http://localhost:8080", client.WithBearerToken(tok))
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateSubscription registers url for the given event types.
func (c *Client) CreateSubscription(ctx context.Context, endpoint string, events ...EventType) (*CreatedSubscription, error) {
	var out CreatedSubscription
	req := createRequest{URL: endpoint, Events: events}
	if err := c.call(ctx, http.MethodPost, "/api/v1/webhooks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSubscriptions returns the caller organization's subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var out struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/webhooks", nil, &out); err != nil {
		return nil, err
	}
	return out.Subscriptions, nil
}

// UpdateSubscription toggles a subscription or replaces its event set.
func (c *Client) UpdateSubscription(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Subscription, error) {
	var out struct {
		Subscription Subscription `json:"subscription"`
	}
	if err := c.call(ctx, http.MethodPatch, "/api/v1/webhooks/"+id.String(), req, &out); err != nil {
		return nil, err
	}
	return &out.Subscription, nil
}

// DeleteSubscription removes a subscription.
func (c *Client) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/webhooks/"+id.String(), nil, nil)
}

// TestSubscription sends one webhook.test delivery and waits for the result.
func (c *Client) TestSubscription(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	var out TestResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/webhooks/"+id.String()+"/test", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeliveries returns up to limit recent delivery attempts, newest first.
func (c *Client) ListDeliveries(ctx context.Context, id uuid.UUID, limit int) ([]DeliveryAttempt, error) {
	path := "/api/v1/webhooks/" + id.String() + "/deliveries"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Deliveries []DeliveryAttempt `json:"deliveries"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Deliveries, nil
}

// Dispatch submits a domain event for background fan-out. It requires a
// service-role token and returns once the event is accepted.
func (c *Client) Dispatch(ctx context.Context, eventType EventType, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	req := dispatchRequest{Type: eventType, Data: raw}
	return c.call(ctx, http.MethodPost, "/api/v1/events", req, nil)
}

// call sends one JSON request and decodes the reply into out when non-nil.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
