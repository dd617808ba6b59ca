package scheduler

import (
	"fmt"
	"time"
)

// Config holds the scheduling parameters. All values must be positive; use
// DefaultConfig for the standard Notion API profile. Designed for
// environment-based configuration using popular env parsing libraries.
type Config struct {
	// TokensPerSecond is the steady-state request throughput.
	TokensPerSecond float64 `env:"SCHEDULER_TOKENS_PER_SECOND" envDefault:"3"`

	// BurstSize caps how many requests can dispatch back-to-back before
	// throttling begins.
	BurstSize int `env:"SCHEDULER_BURST_SIZE" envDefault:"10"`

	// MaxRetries caps retries of 5xx and transport-level failures. 429
	// responses are server-directed backpressure and do not count here.
	MaxRetries int `env:"SCHEDULER_MAX_RETRIES" envDefault:"3"`

	// BaseRetryDelay and MaxRetryDelay bound the exponential backoff
	// applied between retry attempts.
	BaseRetryDelay time.Duration `env:"SCHEDULER_BASE_RETRY_DELAY" envDefault:"1s"`
	MaxRetryDelay  time.Duration `env:"SCHEDULER_MAX_RETRY_DELAY" envDefault:"8s"`

	// MaxQueueSize is the admission limit; submissions beyond it are
	// rejected with ErrQueueFull.
	MaxQueueSize int `env:"SCHEDULER_MAX_QUEUE_SIZE" envDefault:"100"`

	// QueueWarnThreshold is the backlog size at which Statusline starts
	// showing a queue indicator. Observability only.
	QueueWarnThreshold int `env:"SCHEDULER_QUEUE_WARN_THRESHOLD" envDefault:"5"`

	// PauseNotifyThreshold is the minimum server-directed pause that
	// triggers the notify callback. Observability only.
	PauseNotifyThreshold time.Duration `env:"SCHEDULER_PAUSE_NOTIFY_THRESHOLD" envDefault:"10s"`

	// TickInterval is the dispatcher cadence. The dispatcher only runs
	// while there is pending or in-flight work, so a short interval does
	// not cause idle wakeups.
	TickInterval time.Duration `env:"SCHEDULER_TICK_INTERVAL" envDefault:"50ms"`
}

// DefaultConfig returns the standard profile for the Notion API: 3 requests
// per second sustained with bursts of 10.
func DefaultConfig() Config {
	return Config{
		TokensPerSecond:      3,
		BurstSize:            10,
		MaxRetries:           3,
		BaseRetryDelay:       time.Second,
		MaxRetryDelay:        8 * time.Second,
		MaxQueueSize:         100,
		QueueWarnThreshold:   5,
		PauseNotifyThreshold: 10 * time.Second,
		TickInterval:         50 * time.Millisecond,
	}
}

// Validate checks that every parameter is usable. Errors wrap
// ErrInvalidConfig for errors.Is checks.
func (c Config) Validate() error {
	if c.TokensPerSecond <= 0 {
		return fmt.Errorf("%w: tokens per second must be positive, got %v", ErrInvalidConfig, c.TokensPerSecond)
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("%w: burst size must be positive, got %d", ErrInvalidConfig, c.BurstSize)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be positive, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.BaseRetryDelay <= 0 {
		return fmt.Errorf("%w: base retry delay must be positive, got %v", ErrInvalidConfig, c.BaseRetryDelay)
	}
	if c.MaxRetryDelay < c.BaseRetryDelay {
		return fmt.Errorf("%w: max retry delay %v is below base retry delay %v", ErrInvalidConfig, c.MaxRetryDelay, c.BaseRetryDelay)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("%w: max queue size must be positive, got %d", ErrInvalidConfig, c.MaxQueueSize)
	}
	if c.QueueWarnThreshold <= 0 {
		return fmt.Errorf("%w: queue warn threshold must be positive, got %d", ErrInvalidConfig, c.QueueWarnThreshold)
	}
	if c.PauseNotifyThreshold <= 0 {
		return fmt.Errorf("%w: pause notify threshold must be positive, got %v", ErrInvalidConfig, c.PauseNotifyThreshold)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %v", ErrInvalidConfig, c.TickInterval)
	}
	return nil
}
