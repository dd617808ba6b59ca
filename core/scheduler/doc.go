// Package scheduler provides a rate-limited, retrying, cancellable request
// scheduler for outbound API calls. It sits between callers and a
// transport.Transport, enforcing a token bucket rate limit, queueing excess
// work, retrying transient failures with exponential backoff, honoring
// server-issued 429 pauses, and supporting cooperative cancellation without
// ever blocking the caller.
//
// # Features
//
//   - Token bucket rate limiting with configurable burst size
//   - Strict FIFO dispatch with admission control on queue depth
//   - Exponential backoff for 5xx and transport-level failures
//   - Server-directed pauses for 429 responses (Retry-After aware)
//   - Cooperative per-request and bulk cancellation
//   - Stats snapshots and a compact statusline token
//   - Callback panic isolation so callers cannot halt dispatching
//
// # Basic Usage
//
//	client := transport.NewHTTPClient()
//
//	sched, err := scheduler.New(scheduler.DefaultConfig(), client)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sched.Shutdown()
//
//	id := sched.Get("/pages/"+pageID, token, func(res scheduler.Result) {
//		switch {
//		case res.Cancelled:
//			// request was cancelled before completing
//		case res.Err != nil:
//			// terminal failure: 4xx, exhausted retries, or rejection
//		default:
//			// res.StatusCode / res.Body carry the API response
//		}
//	})
//
//	// The id is only good for cancellation:
//	sched.Cancel(id)
//
// # Delivery Semantics
//
// Every accepted submission fires its callback exactly once, whatever the
// outcome. Rejections (queue full, scheduler shut down) use the same
// callback channel, so callers never need a separate synchronous error
// path. Submit itself never blocks.
//
// # Retry Policy
//
// Statuses below 400 are terminal successes. 429 pauses the whole
// scheduler for the server-directed Retry-After (clamped to [1s,60s]) and
// re-queues the request at the front without charging its attempt counter;
// a persistently rate-limiting server can therefore hold a request
// indefinitely, which is deliberate: the server owns that signal. 5xx and
// transport-level failures retry up to MaxRetries with exponential
// backoff. Any other 4xx fails immediately.
//
// # Concurrency
//
// A single mutex guards the bucket, queue, and in-flight map. The
// dispatcher goroutine runs only while work is pending and stops itself
// when idle. Transport exchanges run in their own goroutines; completions
// are marshaled back under the lock at exactly one point before touching
// shared state. Callbacks and notify functions always run outside the
// lock.
package scheduler
