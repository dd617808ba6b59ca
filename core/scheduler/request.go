package scheduler

import (
	"time"
)

// Callback receives a request's terminal outcome. Every submitted request
// fires its callback exactly once, whatever the outcome. Callbacks run
// outside the scheduler lock; a panicking callback is logged and never
// halts dispatching.
type Callback func(Result)

// RequestOptions carries the per-request HTTP parameters.
type RequestOptions struct {
	Method string
	Header map[string]string
	Body   []byte
}

// Result is the terminal outcome delivered to a request's callback.
// Exactly one of the three shapes applies: success (Err nil, Cancelled
// false), failure (Err non-nil), or cancellation (Cancelled true with
// Err set to ErrCancelled).
type Result struct {
	// ID echoes the request id returned by Submit. Empty for
	// admission-time rejections, which never allocate an id.
	ID         string
	StatusCode int
	Body       []byte
	Err        error
	Cancelled  bool
}

// requestState tracks where a request currently lives.
// Transitions: queued -> inflight -> {done | queued (retry)}.
type requestState int

const (
	stateQueued requestState = iota
	stateInFlight
	stateDone
)

// request is the scheduler-owned record for one submission. The caller
// holds only the id, for cancellation.
type request struct {
	id         string
	endpoint   string
	credential string
	opts       RequestOptions
	callback   Callback
	attempt    int // 1-based; incremented only for 5xx/transport retries
	createdAt  time.Time
	cancelled  bool
	state      requestState
}

// markQueued records a (re-)entry into the FIFO queue.
func (r *request) markQueued() {
	r.state = stateQueued
}

// markInFlight records dispatch to the transport.
func (r *request) markInFlight() {
	r.state = stateInFlight
}

// markDone records a terminal state; the record is discarded afterwards.
func (r *request) markDone() {
	r.state = stateDone
}

// requestQueue is a FIFO of not-yet-dispatched requests. Retried 429s
// re-enter at the front so server-acknowledged backpressure does not cost
// a request its place in line.
type requestQueue struct {
	items []*request
}

func (q *requestQueue) len() int {
	return len(q.items)
}

func (q *requestQueue) push(r *request) {
	r.markQueued()
	q.items = append(q.items, r)
}

func (q *requestQueue) pushFront(r *request) {
	r.markQueued()
	q.items = append([]*request{r}, q.items...)
}

func (q *requestQueue) pop() *request {
	if len(q.items) == 0 {
		return nil
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r
}

func (q *requestQueue) find(id string) *request {
	for _, r := range q.items {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (q *requestQueue) clear() []*request {
	items := q.items
	q.items = nil
	return items
}
