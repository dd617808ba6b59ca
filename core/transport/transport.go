package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Transport performs a single request/response exchange against the remote
// API. Implementations must not retry, rate-limit, or cache; those concerns
// belong to the scheduler sitting in front of the transport.
type Transport interface {
	// Do executes exactly one exchange. A non-nil error indicates a
	// transport-level failure (connection refused, DNS, timeout); HTTP
	// error statuses are returned in the Response with a nil error.
	Do(ctx context.Context, req Request) (*Response, error)
}

// Request describes one outbound API call in provider-neutral form.
type Request struct {
	Method     string
	Endpoint   string // path relative to the client's base URL, e.g. "/pages/abc"
	Credential string // bearer token for the integration
	Header     map[string]string
	Body       []byte
}

// Response captures the outcome of a single exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports whether the response carries a non-error status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode < http.StatusBadRequest
}

// IsRateLimited reports whether the server rejected the request with 429.
func (r *Response) IsRateLimited() bool {
	return r.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether the status indicates a transient server
// failure (5xx) worth retrying with backoff.
func (r *Response) IsRetryable() bool {
	return r.StatusCode >= http.StatusInternalServerError && r.StatusCode < 600
}

// RetryAfter parses the Retry-After response header. It supports both the
// delay-seconds and the HTTP-date form. The second return value is false
// when the header is absent or unparseable.
func (r *Response) RetryAfter() (time.Duration, bool) {
	v := r.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
