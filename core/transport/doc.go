// Package transport defines the single-exchange collaborator consumed by the
// request scheduler, plus its net/http implementation.
//
// A Transport performs exactly one request/response exchange per call. It
// never retries, never rate-limits, and never caches; the scheduler in front
// of it owns all of those policies. The split keeps the scheduler free of
// net/http and makes it trivial to substitute a mock in tests.
//
// # Usage
//
//	client := transport.NewHTTPClient(
//		transport.WithTimeout(15*time.Second),
//	)
//
//	resp, err := client.Do(ctx, transport.Request{
//		Method:     "GET",
//		Endpoint:   "/pages/" + pageID,
//		Credential: token,
//	})
//	if err != nil {
//		// transport-level failure: DNS, connection, timeout
//	}
//	if !resp.IsSuccess() {
//		// HTTP error status; inspect resp.StatusCode and resp.Body
//	}
//
// Response helpers classify statuses the way the scheduler's retry policy
// does: IsSuccess (<400), IsRateLimited (429), IsRetryable (5xx). RetryAfter
// parses the Retry-After header in both delay-seconds and HTTP-date form.
package transport
