package scheduler_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionkit/notionkit/core/scheduler"
	"github.com/notionkit/notionkit/core/transport"
	"github.com/notionkit/notionkit/pkg/async"
)

// fakeTransport records every exchange and delegates responses to a
// per-test handler. The handler receives the 1-based call number.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []transport.Request
	handler func(call int, req transport.Request) (*transport.Response, error)
}

func (f *fakeTransport) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return ok(), nil
	}
	return handler(call, req)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Endpoint
	}
	return out
}

func ok() *transport.Response {
	return &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{}`)}
}

func status(code int) *transport.Response {
	return &transport.Response{StatusCode: code, Header: http.Header{}}
}

func rateLimited(retryAfter string) *transport.Response {
	h := http.Header{}
	h.Set("Retry-After", retryAfter)
	return &transport.Response{StatusCode: http.StatusTooManyRequests, Header: h}
}

// fastConfig keeps retry and tick delays short so tests run quickly.
func fastConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.TokensPerSecond = 100
	cfg.BurstSize = 10
	cfg.BaseRetryDelay = 10 * time.Millisecond
	cfg.MaxRetryDelay = 40 * time.Millisecond
	cfg.TickInterval = 5 * time.Millisecond
	return cfg
}

func newScheduler(t *testing.T, cfg scheduler.Config, tr transport.Transport, opts ...scheduler.Option) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.New(cfg, tr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

// resultFuture bridges the callback channel to a blocking await.
func resultFuture() (*async.Future[scheduler.Result], scheduler.Callback) {
	f := async.NewFuture[scheduler.Result]()
	return f, func(res scheduler.Result) { f.Complete(res, nil) }
}

func awaitResult(t *testing.T, f *async.Future[scheduler.Result]) scheduler.Result {
	t.Helper()

	res, err := f.AwaitWithTimeout(5 * time.Second)
	require.NoError(t, err, "timed out waiting for result delivery")
	return res
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil transport", func(t *testing.T) {
		t.Parallel()

		s, err := scheduler.New(scheduler.DefaultConfig(), nil)
		assert.ErrorIs(t, err, scheduler.ErrTransportNil)
		assert.Nil(t, s)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		cfg := scheduler.DefaultConfig()
		cfg.BurstSize = 0
		s, err := scheduler.New(cfg, &fakeTransport{})
		assert.ErrorIs(t, err, scheduler.ErrInvalidConfig)
		assert.Nil(t, s)
	})
}

func TestScheduler_DispatchesBurstImmediately(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	cfg := fastConfig()
	cfg.TokensPerSecond = 3 // slow refill; the burst alone must cover all ten
	s := newScheduler(t, cfg, tr)

	start := time.Now()
	futures := make([]*async.Future[scheduler.Result], 10)
	for i := range futures {
		f, cb := resultFuture()
		futures[i] = f
		id := s.Get("/pages/abc", "secret", cb)
		require.NotEmpty(t, id)
	}

	for _, f := range futures {
		res := awaitResult(t, f)
		require.NoError(t, res.Err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	}

	assert.Equal(t, 10, tr.callCount())
	assert.Less(t, time.Since(start), time.Second, "a full bucket should absorb the whole burst")
}

func TestScheduler_ThrottlesBeyondBurst(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	cfg := fastConfig()
	cfg.BurstSize = 2
	cfg.TokensPerSecond = 10 // one extra token every 100ms
	s := newScheduler(t, cfg, tr)

	var futures []*async.Future[scheduler.Result]
	start := time.Now()
	for i := 0; i < 3; i++ {
		f, cb := resultFuture()
		futures = append(futures, f)
		s.Get("/blocks/xyz", "secret", cb)
	}

	awaitResult(t, futures[0])
	awaitResult(t, futures[1])
	require.Less(t, time.Since(start), 90*time.Millisecond, "burst should dispatch without throttling")

	awaitResult(t, futures[2])
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond,
		"third request must wait for a token refill")
}

func TestScheduler_DispatchesInSubmissionOrder(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	cfg := fastConfig()
	cfg.BurstSize = 1 // serialize dispatches so arrival order is observable
	s := newScheduler(t, cfg, tr)

	endpoints := []string{"/a", "/b", "/c", "/d", "/e"}
	var futures []*async.Future[scheduler.Result]
	for _, ep := range endpoints {
		f, cb := resultFuture()
		futures = append(futures, f)
		s.Get(ep, "secret", cb)
	}
	for _, f := range futures {
		awaitResult(t, f)
	}

	assert.Equal(t, endpoints, tr.endpoints())
}

func TestScheduler_QueueFullRejection(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	cfg := fastConfig()
	cfg.MaxQueueSize = 2
	s := newScheduler(t, cfg, tr)

	// Hold the queue so nothing drains while we fill it.
	s.Pause(time.Hour)

	id1 := s.Submit("/one", "secret", scheduler.RequestOptions{}, nil)
	id2 := s.Submit("/two", "secret", scheduler.RequestOptions{}, nil)
	require.NotEmpty(t, id1)
	require.NotEmpty(t, id2)

	f, cb := resultFuture()
	id3 := s.Submit("/three", "secret", scheduler.RequestOptions{}, cb)
	assert.Empty(t, id3, "rejected submissions must not allocate an id")

	res := awaitResult(t, f)
	assert.ErrorIs(t, res.Err, scheduler.ErrQueueFull)
	assert.False(t, res.Cancelled)

	stats := s.Stats()
	assert.Equal(t, 2, stats.QueueLength, "rejection must not grow the queue")
	assert.EqualValues(t, 2, stats.TotalRequests, "rejections are not counted as requests")
	assert.Zero(t, tr.callCount())
}

func TestScheduler_CancelQueued(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := newScheduler(t, fastConfig(), tr)

	s.Pause(time.Hour)

	f, cb := resultFuture()
	id := s.Get("/pages/doomed", "secret", cb)
	require.NotEmpty(t, id)

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id), "second cancel of the same id is a no-op")
	assert.False(t, s.Cancel("no-such-id"))

	// The cancelled request resolves once the dispatcher reaches it.
	s.Resume()

	res := awaitResult(t, f)
	assert.True(t, res.Cancelled)
	assert.ErrorIs(t, res.Err, scheduler.ErrCancelled)
	assert.Equal(t, id, res.ID)
	assert.Zero(t, tr.callCount(), "cancelled requests never reach the transport")
	assert.EqualValues(t, 1, s.Stats().TotalCancelled)
}

func TestScheduler_CancelInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			<-release
			return ok(), nil
		},
	}
	s := newScheduler(t, fastConfig(), tr)

	f, cb := resultFuture()
	id := s.Get("/pages/slow", "secret", cb)

	require.Eventually(t, func() bool { return tr.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	// The transport call keeps running; only the delivered outcome changes.
	require.True(t, s.Cancel(id))
	close(release)

	res := awaitResult(t, f)
	assert.True(t, res.Cancelled)
	assert.ErrorIs(t, res.Err, scheduler.ErrCancelled)
	assert.Equal(t, id, res.ID)
	assert.Equal(t, 1, tr.callCount())
}

func TestScheduler_CancelAll(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := newScheduler(t, fastConfig(), tr)

	s.Pause(time.Hour)

	var futures []*async.Future[scheduler.Result]
	for i := 0; i < 3; i++ {
		f, cb := resultFuture()
		futures = append(futures, f)
		s.Get("/pages/bulk", "secret", cb)
	}

	assert.Equal(t, 3, s.CancelAll())
	assert.Equal(t, 0, s.CancelAll(), "already-cancelled requests are not re-counted")

	s.Resume()
	for _, f := range futures {
		res := awaitResult(t, f)
		assert.True(t, res.Cancelled)
	}
	assert.EqualValues(t, 3, s.Stats().TotalCancelled)
	assert.Zero(t, tr.callCount())
}

func TestScheduler_RateLimitPausesAndRetries(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			if call == 1 {
				return rateLimited("1"), nil
			}
			return ok(), nil
		},
	}
	cfg := fastConfig()
	cfg.BurstSize = 1 // serialize dispatches so arrival order is observable
	s := newScheduler(t, cfg, tr)

	fa, cba := resultFuture()
	s.Get("/a", "secret", cba)

	require.Eventually(t, s.IsPaused, time.Second, 5*time.Millisecond,
		"a 429 must pause the scheduler")

	remaining := s.Stats().PauseRemaining
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, time.Second)

	// Submitted during the pause; must dispatch after the rate-limited
	// request that went back to the front of the queue.
	fb, cbb := resultFuture()
	s.Get("/b", "secret", cbb)

	resA := awaitResult(t, fa)
	require.NoError(t, resA.Err)
	resB := awaitResult(t, fb)
	require.NoError(t, resB.Err)

	assert.Equal(t, []string{"/a", "/a", "/b"}, tr.endpoints(),
		"the 429'd request keeps its priority over later submissions")

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.TotalRetries, "a 429 counts as a retry but not an attempt")
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.False(t, s.IsPaused())
}

func TestScheduler_RetriesExhausted(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			return status(http.StatusInternalServerError), nil
		},
	}
	s := newScheduler(t, fastConfig(), tr) // MaxRetries 3

	f, cb := resultFuture()
	s.Get("/pages/broken", "secret", cb)

	res := awaitResult(t, f)
	require.ErrorIs(t, res.Err, scheduler.ErrMaxRetriesExceeded)

	var statusErr *scheduler.StatusError
	require.ErrorAs(t, res.Err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	assert.Equal(t, 4, tr.callCount(), "initial attempt plus three retries")
	assert.EqualValues(t, 3, s.Stats().TotalRetries)
}

func TestScheduler_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			return status(http.StatusBadRequest), nil
		},
	}
	s := newScheduler(t, fastConfig(), tr)

	f, cb := resultFuture()
	s.Get("/pages/bogus", "secret", cb)

	res := awaitResult(t, f)
	var statusErr *scheduler.StatusError
	require.ErrorAs(t, res.Err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	assert.Equal(t, 1, tr.callCount(), "client errors fail on the first attempt")
	assert.Zero(t, s.Stats().TotalRetries)
}

func TestScheduler_TransportErrorRetried(t *testing.T) {
	t.Parallel()

	netErr := errors.New("connection reset")
	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			if call == 1 {
				return nil, netErr
			}
			return ok(), nil
		},
	}
	s := newScheduler(t, fastConfig(), tr)

	f, cb := resultFuture()
	s.Get("/pages/flaky", "secret", cb)

	res := awaitResult(t, f)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, tr.callCount())
	assert.EqualValues(t, 1, s.Stats().TotalRetries)
}

func TestScheduler_CallbackPanicIsolated(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := newScheduler(t, fastConfig(), tr)

	s.Get("/pages/first", "secret", func(res scheduler.Result) {
		panic("callback bug")
	})

	// The dispatcher must survive and keep delivering.
	f, cb := resultFuture()
	s.Get("/pages/second", "secret", cb)

	res := awaitResult(t, f)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, tr.callCount())
}

func TestScheduler_NotifyOnLongPause(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			if call == 1 {
				return rateLimited("1"), nil
			}
			return ok(), nil
		},
	}
	cfg := fastConfig()
	cfg.PauseNotifyThreshold = time.Second

	notices := make(chan string, 4)
	s := newScheduler(t, cfg, tr, scheduler.WithNotifyFunc(func(msg string) {
		notices <- msg
	}))

	f, cb := resultFuture()
	s.Get("/pages/limited", "secret", cb)
	require.NoError(t, awaitResult(t, f).Err)

	select {
	case msg := <-notices:
		assert.Contains(t, msg, "rate limited")
	case <-time.After(time.Second):
		t.Fatal("expected a user-visible notice for a long pause")
	}
	assert.Empty(t, notices, "the notice fires exactly once per pause")
}

func TestScheduler_PauseResume(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := newScheduler(t, fastConfig(), tr)

	s.Pause(time.Hour)
	require.True(t, s.IsPaused())

	f, cb := resultFuture()
	s.Get("/pages/waiting", "secret", cb)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, tr.callCount(), "nothing dispatches while paused")

	s.Resume()
	require.False(t, s.IsPaused())

	res := awaitResult(t, f)
	require.NoError(t, res.Err)
}

func TestScheduler_Shutdown(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s, err := scheduler.New(fastConfig(), tr)
	require.NoError(t, err)

	// Both requests are stuck in the queue behind the pause.
	s.Pause(time.Hour)
	f1, cb1 := resultFuture()
	f2, cb2 := resultFuture()
	s.Get("/pages/one", "secret", cb1)
	s.Get("/pages/two", "secret", cb2)

	require.NoError(t, s.Shutdown())

	res1 := awaitResult(t, f1)
	res2 := awaitResult(t, f2)
	assert.True(t, res1.Cancelled)
	assert.True(t, res2.Cancelled)

	// Cumulative counters survive shutdown.
	stats := s.Stats()
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.EqualValues(t, 2, stats.TotalCancelled)
	assert.Zero(t, stats.QueueLength)
	assert.Zero(t, stats.InFlight)

	// Further submissions are rejected through the callback channel.
	f3, cb3 := resultFuture()
	id := s.Get("/pages/three", "secret", cb3)
	assert.Empty(t, id)
	res3 := awaitResult(t, f3)
	assert.ErrorIs(t, res3.Err, scheduler.ErrSchedulerClosed)

	assert.ErrorIs(t, s.Shutdown(), scheduler.ErrSchedulerClosed)
}

func TestScheduler_ShutdownDrainsInFlight(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			return ok(), nil
		},
	}
	s, err := scheduler.New(fastConfig(), tr)
	require.NoError(t, err)

	f, cb := resultFuture()
	s.Get("/pages/racing", "secret", cb)

	require.NoError(t, s.Shutdown())

	// Whatever the race between dispatch and shutdown, the callback
	// fires exactly once.
	res := awaitResult(t, f)
	if res.Err != nil {
		assert.True(t, res.Cancelled)
	}
}

func TestScheduler_ShutdownDuringBackoffDeliversOnce(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		handler: func(call int, req transport.Request) (*transport.Response, error) {
			return status(http.StatusInternalServerError), nil
		},
	}

	// Shutdown races the backoff timer; over many rounds both orderings
	// occur, including the timer firing while Shutdown holds the lock.
	// Whichever side wins, the callback fires exactly once.
	for i := 0; i < 50; i++ {
		cfg := fastConfig()
		cfg.BaseRetryDelay = time.Millisecond
		cfg.MaxRetryDelay = time.Millisecond

		s, err := scheduler.New(cfg, tr)
		require.NoError(t, err)

		var calls atomic.Int32
		f := async.NewFuture[scheduler.Result]()
		s.Get("/pages/racing", "secret", func(res scheduler.Result) {
			calls.Add(1)
			f.Complete(res, nil)
		})

		// Vary how deep into the retry cycle the shutdown lands.
		time.Sleep(time.Duration(i%4) * time.Millisecond)
		require.NoError(t, s.Shutdown())

		awaitResult(t, f)

		// A duplicate would come from a late timer goroutine; give it
		// room to misfire before counting.
		time.Sleep(5 * time.Millisecond)
		assert.EqualValues(t, 1, calls.Load(), "round %d", i)
	}
}

func TestScheduler_Reset(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := newScheduler(t, fastConfig(), tr)

	f, cb := resultFuture()
	s.Get("/pages/before", "secret", cb)
	require.NoError(t, awaitResult(t, f).Err)
	require.EqualValues(t, 1, s.Stats().TotalRequests)

	require.NoError(t, s.Shutdown())
	s.Reset()

	stats := s.Stats()
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.TotalRetries)
	assert.Zero(t, stats.TotalCancelled)
	assert.Equal(t, float64(fastConfig().BurstSize), stats.AvailableTokens)

	// A reset scheduler accepts work again.
	f2, cb2 := resultFuture()
	id := s.Get("/pages/after", "secret", cb2)
	require.NotEmpty(t, id)
	require.NoError(t, awaitResult(t, f2).Err)
}

func TestScheduler_Healthcheck(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	cfg := fastConfig()
	cfg.MaxQueueSize = 2
	s := newScheduler(t, cfg, tr)

	ctx := context.Background()
	require.NoError(t, s.Healthcheck(ctx))

	s.Pause(time.Hour)
	s.Submit("/one", "secret", scheduler.RequestOptions{}, nil)
	s.Submit("/two", "secret", scheduler.RequestOptions{}, nil)

	err := s.Healthcheck(ctx)
	assert.ErrorIs(t, err, scheduler.ErrHealthcheckFailed)
	assert.ErrorIs(t, err, scheduler.ErrQueueSaturated)

	require.NoError(t, s.Shutdown())
	err = s.Healthcheck(ctx)
	assert.ErrorIs(t, err, scheduler.ErrHealthcheckFailed)
	assert.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
}

func TestScheduler_TokensBounded(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	cfg := fastConfig()
	s := newScheduler(t, cfg, tr)

	for i := 0; i < 20; i++ {
		stats := s.Stats()
		assert.GreaterOrEqual(t, stats.AvailableTokens, 0.0)
		assert.LessOrEqual(t, stats.AvailableTokens, float64(cfg.BurstSize))
		time.Sleep(time.Millisecond)
	}
}
