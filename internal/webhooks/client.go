package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single delivery POST.
	DefaultTimeout = 5 * time.Second
	// DefaultUserAgent identifies outbound webhook requests.
	DefaultUserAgent = "leadhooks-webhooks/1.0"

	// Signature and metadata headers sent with every delivery.
	HeaderSignature = "X-Webhook-Signature"
	HeaderEventType = "X-Webhook-Event"
	HeaderEventID   = "X-Webhook-Event-Id"

	maxResponseCapture = 1000
)

// Response is what the client keeps from a destination's reply.
type Response struct {
	StatusCode int
	Body       string
}

// Success reports whether the status code is in the 2xx range.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs single bounded webhook POSTs.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// NewClient creates a Client. A zero timeout means DefaultTimeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
		userAgent:  userAgent,
	}
}

// Post sends body to url. The request context is cancelled when the timeout
// elapses so the underlying connection is torn down, not just abandoned.
// Any status code is a Response; only transport failures return an error.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf strings.Builder
	_, _ = io.Copy(&buf, io.LimitReader(resp.Body, maxResponseCapture))

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       buf.String(),
	}, nil
}
