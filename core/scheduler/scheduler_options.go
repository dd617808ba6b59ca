package scheduler

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Scheduler.
type Option func(*schedulerOptions)

type schedulerOptions struct {
	logger *slog.Logger
	notify func(string)
	now    func() time.Time
}

// WithLogger sets the logger for internal operations. Defaults to a no-op
// logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNotifyFunc sets the callback that surfaces user-visible notices, such
// as a long server-directed pause. Invoked outside the scheduler lock.
func WithNotifyFunc(notify func(message string)) Option {
	return func(o *schedulerOptions) {
		if notify != nil {
			o.notify = notify
		}
	}
}

// WithClock overrides the time source for token refill and pause windows.
// Intended for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}
