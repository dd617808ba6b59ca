package scheduler

import (
	"errors"
	"time"

	"github.com/notionkit/notionkit/core/transport"
)

// retryAction classifies what the dispatcher does with a completed exchange.
type retryAction int

const (
	// actionDeliver delivers a terminal success.
	actionDeliver retryAction = iota
	// actionFail delivers a terminal failure.
	actionFail
	// actionRequeueFront pauses the bucket and puts the request back at
	// the queue head without charging its attempt counter (429).
	actionRequeueFront
	// actionRetryBackoff re-enqueues the request after a backoff delay
	// and increments its attempt counter (5xx / transport failure).
	actionRetryBackoff
)

// decision is the retry policy's verdict for one completed exchange.
type decision struct {
	action retryAction
	pause  time.Duration // actionRequeueFront: server-directed pause
	delay  time.Duration // actionRetryBackoff: wait before re-enqueue
	err    error         // actionFail: terminal error to deliver
}

// Retry-After values outside this window are clamped; a missing or
// unparseable header falls back to the minimum.
const (
	minRetryAfter = time.Second
	maxRetryAfter = 60 * time.Second
)

// decide is the pure retry policy: given the exchange outcome and the
// request's current attempt count, pick the next transition.
//
// 429 is handled separately from 5xx because it is a deterministic,
// server-acknowledged signal with an explicit wait time; 5xx and transport
// failures are undifferentiated and get exponential backoff instead.
func decide(resp *transport.Response, transportErr error, attempt int, cfg Config) decision {
	if transportErr == nil && resp != nil {
		switch {
		case resp.IsSuccess():
			return decision{action: actionDeliver}
		case resp.IsRateLimited():
			return decision{action: actionRequeueFront, pause: retryAfter(resp)}
		case resp.IsRetryable():
			// handled with the transport-error path below
		default:
			// 4xx other than 429: the request itself is wrong,
			// retrying cannot help.
			return decision{action: actionFail, err: &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}}
		}
	}

	// A request gets MaxRetries retries on top of its first attempt, so
	// the attempt counter runs from 1 to MaxRetries+1.
	if attempt <= cfg.MaxRetries {
		return decision{action: actionRetryBackoff, delay: backoffDelay(attempt, cfg)}
	}

	last := transportErr
	if last == nil && resp != nil {
		last = &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return decision{action: actionFail, err: errors.Join(ErrMaxRetriesExceeded, last)}
}

// retryAfter extracts the server-directed wait from a 429 response,
// clamped to [minRetryAfter, maxRetryAfter].
func retryAfter(resp *transport.Response) time.Duration {
	d, ok := resp.RetryAfter()
	if !ok {
		return minRetryAfter
	}
	return min(max(d, minRetryAfter), maxRetryAfter)
}

// backoffDelay computes min(base * 2^(attempt-1), max) for the given
// 1-based attempt counter.
func backoffDelay(attempt int, cfg Config) time.Duration {
	d := cfg.BaseRetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.MaxRetryDelay {
			return cfg.MaxRetryDelay
		}
	}
	return min(d, cfg.MaxRetryDelay)
}
