package scheduler

import (
	"errors"
	"fmt"
)

// Package-level error definitions for scheduler operations.
var (
	ErrInvalidConfig      = errors.New("invalid scheduler configuration")
	ErrTransportNil       = errors.New("transport cannot be nil")
	ErrQueueFull          = errors.New("request queue is full")
	ErrCancelled          = errors.New("request cancelled")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrSchedulerClosed    = errors.New("scheduler is shut down")
	ErrHealthcheckFailed  = errors.New("healthcheck failed")
	ErrQueueSaturated     = errors.New("request queue is saturated")
)

// StatusError is the terminal failure for requests the server rejected with
// an HTTP error status. It wraps the status code and the raw response body
// so callers can surface API error details.
type StatusError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}
