package scheduler

import "time"

// bucket implements the token bucket algorithm with an optional pause
// window. A pause freezes acquisition entirely; tokens still accrue for the
// elapsed time once refill runs again, capped at burst.
//
// Invariant: 0 <= tokens <= burst at all times.
type bucket struct {
	tokens      float64
	burst       float64
	rate        float64 // tokens per second
	lastRefill  time.Time
	pausedUntil time.Time // zero when not paused
	now         func() time.Time
}

func newBucket(rate float64, burst int, now func() time.Time) *bucket {
	return &bucket{
		tokens:     float64(burst),
		burst:      float64(burst),
		rate:       rate,
		lastRefill: now(),
		now:        now,
	}
}

// refill credits tokens for the time elapsed since the last refill.
func (b *bucket) refill() {
	n := b.now()
	elapsed := n.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.rate)
	}
	b.lastRefill = n
}

// tryAcquire consumes one token if available. During an active pause window
// it fails without touching tokens; an expired window is cleared on the way
// through.
func (b *bucket) tryAcquire() bool {
	if !b.pausedUntil.IsZero() {
		if b.now().Before(b.pausedUntil) {
			return false
		}
		b.pausedUntil = time.Time{}
	}

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// pause blocks acquisition until now+d. Used for both manual throttling and
// server-directed 429 backoff.
func (b *bucket) pause(d time.Duration) {
	if d > 0 {
		b.pausedUntil = b.now().Add(d)
	}
}

// resume clears the pause window immediately.
func (b *bucket) resume() {
	b.pausedUntil = time.Time{}
}

func (b *bucket) isPaused() bool {
	return !b.pausedUntil.IsZero() && b.now().Before(b.pausedUntil)
}

// pauseRemaining returns how long the active pause window has left, or zero
// when not paused.
func (b *bucket) pauseRemaining() time.Duration {
	if !b.isPaused() {
		return 0
	}
	return b.pausedUntil.Sub(b.now())
}
