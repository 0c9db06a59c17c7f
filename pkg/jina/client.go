// Package jina provides a client for the Jina AI Reader, which renders a
// page in a headless browser and returns its text.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/resilience"
)

// Client defines the Jina AI Reader operations.
type Client interface {
	// Read renders targetURL and returns its content.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
}

// ReadResponse is the parsed Jina API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the content from Jina.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRenderTimeout bounds how long Jina waits for the page to settle. The
// HTTP client timeout is raised to cover it.
func WithRenderTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.renderTimeout = d
		if c.http.Timeout < d+5*time.Second {
			c.http.Timeout = d + 5*time.Second
		}
	}
}

// WithBackoff overrides the retry policy for transient failures.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *httpClient) {
		c.backoff = b
	}
}

// WithReturnFormat sets the X-Return-Format header ("text" or "markdown").
func WithReturnFormat(format string) Option {
	return func(c *httpClient) {
		c.format = format
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	format        string
	renderTimeout time.Duration
	backoff       resilience.Backoff
	http          *http.Client
}

// NewClient creates a new Jina AI Reader client. An empty apiKey uses the
// anonymous tier.
func NewClient(apiKey string, opts ...Option) Client {
	b := resilience.DefaultBackoff()
	b.Initial = time.Second
	b.OnRetry = resilience.LogRetry("jina", "read")
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		format:  "text",
		backoff: b,
		http: &http.Client{
			Timeout: 45 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, targetURL)

	// A timed out render already used the full client timeout.
	b := c.backoff
	retryable := b.Retryable
	if retryable == nil {
		retryable = resilience.IsTransient
	}
	b.Retryable = func(err error) bool {
		return !resilience.IsTimeout(err) && retryable(err)
	}

	body, err := resilience.RetryVal(ctx, b, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, reqURL)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: request failed")
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) do(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", c.format)
	if c.renderTimeout > 0 {
		req.Header.Set("X-Timeout", strconv.Itoa(int(c.renderTimeout.Seconds())))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("jina: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
