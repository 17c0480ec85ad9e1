package authapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcerr "github.com/kurun/runcheck/pkg/errors"
)

var errNonRetryable = errors.New("non-retryable error")

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	t.Run("success after retry", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		result, err := RetryWithConfig(context.Background(), fastRetry(), func() (string, error) {
			attempts++
			if attempts < 2 {
				return "", rcerr.ErrRetryable
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 2, attempts)
	})

	t.Run("non retryable", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		_, err := RetryWithConfig(context.Background(), fastRetry(), func() (string, error) {
			attempts++
			return "", errNonRetryable
		})
		require.ErrorIs(t, err, errNonRetryable)
		assert.Equal(t, 1, attempts)
	})

	t.Run("max attempts", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		_, err := RetryWithConfig(context.Background(), fastRetry(), func() (string, error) {
			attempts++
			return "", rcerr.ErrNetworkError
		})
		require.ErrorIs(t, err, rcerr.ErrNetworkError)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, 3, attempts)
	})

	t.Run("zero attempts runs once", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		_, _ = RetryWithConfig(context.Background(), RetryConfig{}, func() (int, error) {
			attempts++
			return 0, rcerr.ErrRetryable
		})
		assert.Equal(t, 1, attempts)
	})

	t.Run("context canceled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}
		attempts := 0
		_, err := RetryWithConfig(ctx, cfg, func() (int, error) {
			attempts++
			cancel()
			return 0, rcerr.ErrRetryable
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

func TestCalculateDelay(t *testing.T) {
	t.Parallel()

	for attempt := range 5 {
		d := calculateDelay(attempt, 100*time.Millisecond, 400*time.Millisecond)
		want := min(100*time.Millisecond*(1<<attempt), 400*time.Millisecond)
		assert.GreaterOrEqual(t, d, want/2)
		assert.Less(t, d, want)
	}
	assert.Equal(t, time.Duration(1), calculateDelay(0, 1, 1))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errNonRetryable))
	assert.False(t, IsRetryable(rcerr.ErrLoginFailed))
	assert.True(t, IsRetryable(rcerr.ErrRetryable))
	assert.True(t, IsRetryable(rcerr.ErrRateLimited))
	assert.True(t, IsRetryable(rcerr.WithCause(rcerr.ErrNetworkError, errNonRetryable)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&retryAfterError{err: rcerr.ErrRateLimited, after: time.Second}))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, 5*time.Second, ParseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
