package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notionkit/notionkit/core/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("nil error yields empty attr", func(t *testing.T) {
		t.Parallel()

		attr := logger.Error(nil)
		assert.Equal(t, slog.Attr{}, attr)
	})

	t.Run("non-nil error", func(t *testing.T) {
		t.Parallel()

		err := errors.New("boom")
		attr := logger.Error(err)
		assert.Equal(t, "error", attr.Key)
		assert.Equal(t, err, attr.Value.Any())
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.RequestID(""))

	attr := logger.RequestID("req-123")
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "req-123", attr.Value.String())
}

func TestSimpleAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "component", logger.Component("scheduler").Key)
	assert.Equal(t, "endpoint", logger.Endpoint("/pages/abc").Key)
	assert.Equal(t, "status", logger.Status(429).Key)
	assert.Equal(t, "attempt", logger.Attempt(2).Key)
	assert.Equal(t, "duration", logger.Duration(time.Second).Key)
}

func TestElapsed(t *testing.T) {
	t.Parallel()

	attr := logger.Elapsed(time.Now().Add(-time.Second))
	assert.Equal(t, "elapsed", attr.Key)
	assert.GreaterOrEqual(t, attr.Value.Duration(), time.Second)
}
