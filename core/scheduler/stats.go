package scheduler

import (
	"fmt"
	"time"
)

// Stats is a point-in-time snapshot of scheduler state. Counters are
// cumulative for the scheduler's lifetime; the rest describes the moment
// the snapshot was taken.
type Stats struct {
	QueueLength     int
	AvailableTokens float64
	InFlight        int
	TotalRequests   int64
	TotalRetries    int64
	TotalCancelled  int64
	Paused          bool
	PauseRemaining  time.Duration // zero when not paused
}

// errorFlagWindow is how long Statusline keeps showing the error glyph
// after a terminal failure.
const errorFlagWindow = 10 * time.Second

// Status glyphs, in display priority order.
const (
	glyphError   = "✗"
	glyphPaused  = "⏸"
	glyphBacklog = "⏳"
)

// Statusline returns a compact status token for display surfaces: the
// error glyph while a recent terminal failure is within its window, a pause
// countdown while the bucket is paused, a backlog indicator once the queue
// exceeds the warning threshold, otherwise an empty string.
func (s *Scheduler) Statusline() string {
	s.mu.Lock()
	lastErr := s.lastErrorAt
	paused := s.bucket.isPaused()
	remaining := s.bucket.pauseRemaining()
	queueLen := s.queue.len()
	now := s.now()
	s.mu.Unlock()

	if !lastErr.IsZero() && now.Sub(lastErr) < errorFlagWindow {
		return glyphError
	}
	if paused {
		secs := int((remaining + time.Second - 1) / time.Second)
		return fmt.Sprintf("%s %ds", glyphPaused, secs)
	}
	if queueLen > s.cfg.QueueWarnThreshold {
		return fmt.Sprintf("%s %d", glyphBacklog, queueLen)
	}
	return ""
}

// Stats returns a consistent snapshot. The bucket is refilled first so the
// token count reflects the current instant rather than the last dispatch.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bucket.refill()

	return Stats{
		QueueLength:     s.queue.len(),
		AvailableTokens: s.bucket.tokens,
		InFlight:        len(s.inflight),
		TotalRequests:   s.totalRequests.Load(),
		TotalRetries:    s.totalRetries.Load(),
		TotalCancelled:  s.totalCancelled.Load(),
		Paused:          s.bucket.isPaused(),
		PauseRemaining:  s.bucket.pauseRemaining(),
	}
}
