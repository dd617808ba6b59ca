package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/notionkit/notionkit/core/logger"
)

const (
	// DefaultBaseURL is the Notion API origin all endpoint paths are
	// resolved against unless overridden.
	DefaultBaseURL = "https://api.notion.com/v1"

	// DefaultAPIVersion is sent as the Notion-Version header.
	DefaultAPIVersion = "2022-06-28"

	defaultTimeout = 30 * time.Second

	// maxResponseBody caps how much of a response body is read into
	// memory. Notion payloads are small; anything beyond this is truncated.
	maxResponseBody = 8 << 20
)

// HTTPClient is the net/http-backed Transport implementation. It owns
// per-request timeouts; the scheduler in front of it manages only its own
// scheduling delays.
type HTTPClient struct {
	baseURL    string
	apiVersion string
	header     map[string]string
	client     *http.Client
	logger     *slog.Logger
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithBaseURL overrides the API origin, mainly for tests and proxies.
func WithBaseURL(url string) HTTPClientOption {
	return func(c *HTTPClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithAPIVersion overrides the Notion-Version header value.
func WithAPIVersion(version string) HTTPClientOption {
	return func(c *HTTPClient) {
		if version != "" {
			c.apiVersion = version
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.header[key] = value
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithClientLogger sets the logger for request/response tracing.
func WithClientLogger(log *slog.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewHTTPClient creates a Transport backed by net/http.
func NewHTTPClient(opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		header:     make(map[string]string),
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do performs one HTTP exchange. HTTP error statuses are returned in the
// Response; only transport-level failures produce an error.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", req.Endpoint, err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	httpReq.Header.Set("Notion-Version", c.apiVersion)
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.header {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "exchange failed",
			logger.Endpoint(req.Endpoint),
			logger.Error(err))
		return nil, fmt.Errorf("request to %s failed: %w", req.Endpoint, err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.Endpoint, err)
	}

	c.logger.DebugContext(ctx, "exchange completed",
		logger.Endpoint(req.Endpoint),
		logger.Status(httpResp.StatusCode),
		logger.Elapsed(start))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}
