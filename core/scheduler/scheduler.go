package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/notionkit/notionkit/core/logger"
	"github.com/notionkit/notionkit/core/transport"
)

// shutdownTimeout bounds how long Shutdown waits for the dispatcher and
// outstanding transport goroutines to drain.
const shutdownTimeout = 5 * time.Second

// Scheduler is a rate-limited, retrying, cancellable request scheduler. It
// sits between API callers and a Transport, enforcing a token bucket rate
// limit, queueing excess work in FIFO order, retrying transient failures
// with exponential backoff, honoring server-issued 429 pauses, and
// supporting cooperative cancellation. Submit never blocks; outcomes are
// delivered through callbacks.
//
// Each Scheduler is an independent instance; multiple schedulers with
// different configurations can coexist in one process.
type Scheduler struct {
	cfg       Config
	transport transport.Transport

	mu       sync.Mutex
	bucket   *bucket
	queue    requestQueue
	inflight map[string]*request
	timers   map[string]*time.Timer // backoff waits, keyed by request id

	ticking       bool
	closed        bool
	lastErrorAt   time.Time
	notifiedUntil time.Time // end of the last pause already notified about

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Cumulative counters, preserved across Shutdown
	totalRequests  atomic.Int64
	totalRetries   atomic.Int64
	totalCancelled atomic.Int64

	logger *slog.Logger
	notify func(string)
	now    func() time.Time
}

// New creates a scheduler driving the given transport. The configuration is
// immutable after construction.
func New(cfg Config, tr transport.Transport, opts ...Option) (*Scheduler, error) {
	if tr == nil {
		return nil, ErrTransportNil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &schedulerOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:       cfg,
		transport: tr,
		bucket:    newBucket(cfg.TokensPerSecond, cfg.BurstSize, options.now),
		inflight:  make(map[string]*request),
		timers:    make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
		logger:    options.logger,
		notify:    options.notify,
		now:       options.now,
	}, nil
}

// Submit enqueues one request and returns its id synchronously; the id is
// only good for Cancel. The outcome arrives later through cb. When the
// queue is at capacity the submission is rejected through the same callback
// channel with ErrQueueFull, no id is allocated, and the empty string is
// returned.
func (s *Scheduler) Submit(endpoint, credential string, opts RequestOptions, cb Callback) string {
	if opts.Method == "" {
		opts.Method = "GET"
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go s.deliver(cb, Result{Err: ErrSchedulerClosed})
		return ""
	}
	if s.queue.len() >= s.cfg.MaxQueueSize {
		queueLen := s.queue.len()
		s.mu.Unlock()
		s.logger.Warn("submission rejected, queue full",
			logger.Component("scheduler"),
			logger.Endpoint(endpoint),
			slog.Int("queue_length", queueLen))
		go s.deliver(cb, Result{Err: fmt.Errorf("%w: %d requests pending", ErrQueueFull, queueLen)})
		return ""
	}

	r := &request{
		id:         uuid.NewString(),
		endpoint:   endpoint,
		credential: credential,
		opts:       opts,
		callback:   cb,
		attempt:    1,
		createdAt:  s.now(),
	}
	s.queue.push(r)
	s.totalRequests.Add(1)
	s.ensureTickingLocked()
	s.mu.Unlock()

	return r.id
}

// Get submits a GET request.
func (s *Scheduler) Get(endpoint, credential string, cb Callback) string {
	return s.Submit(endpoint, credential, RequestOptions{Method: "GET"}, cb)
}

// Post submits a POST request with a JSON body.
func (s *Scheduler) Post(endpoint, credential string, body []byte, cb Callback) string {
	return s.Submit(endpoint, credential, RequestOptions{Method: "POST", Body: body}, cb)
}

// Patch submits a PATCH request with a JSON body.
func (s *Scheduler) Patch(endpoint, credential string, body []byte, cb Callback) string {
	return s.Submit(endpoint, credential, RequestOptions{Method: "PATCH", Body: body}, cb)
}

// Cancel marks the request cancelled wherever it currently lives. A queued
// request resolves with a cancelled outcome the next time the dispatcher
// would have popped it, without reaching the transport. An in-flight
// request is not aborted; its eventual result is discarded and a cancelled
// outcome delivered instead. Returns false for unknown or already-cancelled
// ids.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.queue.find(id)
	if r == nil {
		r = s.inflight[id]
	}
	if r == nil || r.cancelled {
		return false
	}

	r.cancelled = true
	s.totalCancelled.Add(1)
	return true
}

// CancelAll marks every live request cancelled and returns how many were
// newly marked.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() int {
	count := 0
	for _, r := range s.queue.items {
		if !r.cancelled {
			r.cancelled = true
			count++
		}
	}
	for _, r := range s.inflight {
		if !r.cancelled {
			r.cancelled = true
			count++
		}
	}
	s.totalCancelled.Add(int64(count))
	return count
}

// Pause suspends dispatching for the given duration. Queued work is kept
// and resumes automatically when the window expires.
func (s *Scheduler) Pause(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket.pause(d)
}

// Resume lifts a pause immediately and restarts dispatching if work is
// pending.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket.resume()
	if s.queue.len() > 0 || len(s.inflight) > 0 {
		s.ensureTickingLocked()
	}
}

// IsPaused reports whether a pause window is currently active.
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket.isPaused()
}

// Healthcheck validates that the scheduler can accept work.
// The returned error can be checked using errors.Is:
//
//	if errors.Is(err, scheduler.ErrQueueSaturated) { ... }
func (s *Scheduler) Healthcheck(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	queueLen := s.queue.len()
	s.mu.Unlock()

	if closed {
		return errors.Join(ErrHealthcheckFailed, ErrSchedulerClosed)
	}
	if queueLen >= s.cfg.MaxQueueSize {
		return errors.Join(ErrHealthcheckFailed, ErrQueueSaturated,
			fmt.Errorf("%d/%d requests pending", queueLen, s.cfg.MaxQueueSize))
	}
	return nil
}

// Shutdown cancels all outstanding work, stops the dispatcher, and waits
// for in-flight transport calls to drain. Cumulative counters survive;
// the scheduler accepts no further submissions afterwards.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.closed = true
	s.cancelAllLocked()

	// Backoff waiters resolve here; requests with an outstanding
	// transport call resolve when that call completes.
	var drop []*request
	for id, timer := range s.timers {
		delete(s.timers, id)
		if !timer.Stop() {
			// The timer already fired and its requeueAfterBackoff
			// goroutine is waiting on the lock; it observes the
			// closed flag and owns the single delivery.
			continue
		}
		if r, ok := s.inflight[id]; ok {
			delete(s.inflight, id)
			r.markDone()
			drop = append(drop, r)
		}
	}
	for _, r := range s.queue.clear() {
		r.markDone()
		drop = append(drop, r)
	}
	s.mu.Unlock()

	s.cancel()

	for _, r := range drop {
		s.deliver(r.callback, Result{ID: r.id, Err: ErrCancelled, Cancelled: true})
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped cleanly", logger.Component("scheduler"))
		return nil
	case <-time.After(shutdownTimeout):
		s.logger.Warn("scheduler shutdown timeout exceeded",
			logger.Component("scheduler"),
			logger.Duration(shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", shutdownTimeout)
	}
}

// Reset wipes all state including cumulative counters, leaving the
// scheduler as freshly constructed. Intended for tests.
func (s *Scheduler) Reset() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	// Late completions from still-running transport calls must not be
	// re-queued onto the wiped scheduler.
	for _, r := range s.inflight {
		r.cancelled = true
	}
	for _, r := range s.queue.clear() {
		r.cancelled = true
	}
	s.inflight = make(map[string]*request)
	s.bucket = newBucket(s.cfg.TokensPerSecond, s.cfg.BurstSize, s.now)
	s.totalRequests.Store(0)
	s.totalRetries.Store(0)
	s.totalCancelled.Store(0)
	s.lastErrorAt = time.Time{}
	s.notifiedUntil = time.Time{}
	s.closed = false
	s.ticking = false
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

// ensureTickingLocked starts the dispatcher goroutine unless it is already
// running. Callers must hold s.mu.
func (s *Scheduler) ensureTickingLocked() {
	if s.ticking || s.closed {
		return
	}
	s.ticking = true
	s.wg.Add(1)
	go s.dispatchLoop(s.ctx)
}

// dispatchLoop drives dispatching on a fixed cadence. It runs only while
// there is pending or in-flight work and stops itself when both are empty;
// the next submission restarts it.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	// First pass runs immediately so a submission into a full bucket
	// dispatches without waiting for the first tick.
	if s.dispatchPending(ctx) {
		return
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			// Reset may already have started a replacement loop;
			// only clear the flag if this loop is still current.
			if s.ctx == ctx {
				s.ticking = false
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
			if s.dispatchPending(ctx) {
				return
			}
		}
	}
}

// dispatchPending drains the queue while the bucket allows, moving popped
// requests in-flight and handing them to the transport. Returns true when
// the loop should exit because the scheduler is idle or closed.
func (s *Scheduler) dispatchPending(ctx context.Context) (stop bool) {
	var cancelled []*request

	s.mu.Lock()
	if s.ctx != ctx {
		// Superseded by Reset; a replacement loop owns the flag now.
		s.mu.Unlock()
		return true
	}
	if s.closed {
		s.ticking = false
		s.mu.Unlock()
		return true
	}

	for s.queue.len() > 0 && s.bucket.tryAcquire() {
		r := s.queue.pop()

		// Cancelled requests resolve at the point the dispatcher
		// would have dispatched them, never reaching the transport.
		if r.cancelled {
			r.markDone()
			cancelled = append(cancelled, r)
			continue
		}

		r.markInFlight()
		s.inflight[r.id] = r
		s.wg.Add(1)
		go s.execute(ctx, r)
	}

	idle := s.queue.len() == 0 && len(s.inflight) == 0
	if idle {
		s.ticking = false
	}
	s.mu.Unlock()

	for _, r := range cancelled {
		s.deliver(r.callback, Result{ID: r.id, Err: ErrCancelled, Cancelled: true})
	}

	return idle
}

// execute performs one transport exchange and routes the completion back
// onto scheduler state. A panicking transport is treated as a
// transport-level failure rather than crashing the process.
func (s *Scheduler) execute(ctx context.Context, r *request) {
	defer s.wg.Done()

	resp, err := func() (resp *transport.Response, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				resp, err = nil, fmt.Errorf("panic in transport: %v", rec)
			}
		}()
		return s.transport.Do(ctx, transport.Request{
			Method:     r.opts.Method,
			Endpoint:   r.endpoint,
			Credential: r.credential,
			Header:     r.opts.Header,
			Body:       r.opts.Body,
		})
	}()

	s.complete(r, resp, err)
}

// complete is the single hand-off point where transport completions are
// marshaled back under the scheduler lock and fed through the retry policy.
func (s *Scheduler) complete(r *request, resp *transport.Response, transportErr error) {
	var (
		result  Result
		settled bool
		notice  string
	)

	s.mu.Lock()
	delete(s.inflight, r.id)

	// A cancelled in-flight request keeps its transport call running to
	// completion; the result is discarded here and a cancelled outcome
	// delivered instead. Shutdown marks everything cancelled, so the
	// closed case collapses into this one.
	if r.cancelled || s.closed {
		r.markDone()
		result = Result{ID: r.id, Err: ErrCancelled, Cancelled: true}
		settled = true
	} else {
		d := decide(resp, transportErr, r.attempt, s.cfg)
		switch d.action {
		case actionDeliver:
			r.markDone()
			result = Result{ID: r.id, StatusCode: resp.StatusCode, Body: resp.Body}
			settled = true

		case actionFail:
			r.markDone()
			s.lastErrorAt = s.now()
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			result = Result{ID: r.id, StatusCode: status, Err: d.err}
			settled = true
			s.logger.Error("request failed terminally",
				logger.Component("scheduler"),
				logger.RequestID(r.id),
				logger.Endpoint(r.endpoint),
				logger.Status(status),
				logger.Attempt(r.attempt),
				logger.Error(d.err))

		case actionRequeueFront:
			// Server-acknowledged backpressure: pause everyone and
			// keep this request's place at the head of the line.
			// The attempt counter is not charged.
			s.totalRetries.Add(1)
			s.bucket.pause(d.pause)
			s.queue.pushFront(r)
			s.ensureTickingLocked()
			s.logger.Info("rate limited, pausing dispatch",
				logger.Component("scheduler"),
				logger.RequestID(r.id),
				logger.Duration(d.pause))
			if d.pause >= s.cfg.PauseNotifyThreshold && s.bucket.pausedUntil.After(s.notifiedUntil) {
				s.notifiedUntil = s.bucket.pausedUntil
				notice = fmt.Sprintf("API rate limited, pausing requests for %s", d.pause.Round(time.Second))
			}

		case actionRetryBackoff:
			s.totalRetries.Add(1)
			r.attempt++
			// The request stays in the in-flight map during its
			// backoff wait so it remains findable for Cancel and
			// keeps the dispatcher alive.
			s.inflight[r.id] = r
			s.timers[r.id] = time.AfterFunc(d.delay, func() { s.requeueAfterBackoff(r) })
			s.logger.Warn("transient failure, retrying",
				logger.Component("scheduler"),
				logger.RequestID(r.id),
				logger.Endpoint(r.endpoint),
				logger.Attempt(r.attempt),
				logger.Duration(d.delay),
				logger.Error(transportErr))
		}
	}
	s.mu.Unlock()

	if notice != "" && s.notify != nil {
		s.notify(notice)
	}
	if settled {
		s.deliver(r.callback, result)
	}
}

// requeueAfterBackoff moves a backoff waiter back onto the queue tail once
// its delay elapses.
func (s *Scheduler) requeueAfterBackoff(r *request) {
	var deliverCancelled bool

	s.mu.Lock()
	delete(s.timers, r.id)
	delete(s.inflight, r.id)

	if r.cancelled || s.closed {
		r.markDone()
		deliverCancelled = true
	} else {
		s.queue.push(r)
		s.ensureTickingLocked()
	}
	s.mu.Unlock()

	if deliverCancelled {
		s.deliver(r.callback, Result{ID: r.id, Err: ErrCancelled, Cancelled: true})
	}
}

// deliver invokes a callback with panic recovery so a faulty caller can
// never corrupt or halt the dispatcher.
func (s *Scheduler) deliver(cb Callback, res Result) {
	if cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("callback panicked",
				logger.Component("scheduler"),
				logger.RequestID(res.ID),
				slog.Any("panic", rec))
		}
	}()
	cb(res)
}
