package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/finmail/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("boom")
			}
			return nil
		}, fastRetry(5))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return errors.New("still down")
		}, fastRetry(2))
		require.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on non retryable error", func(t *testing.T) {
		calls := 0
		fatal := &RetryableError{Err: errors.New("bad credentials"), Retryable: false}
		err := WithRetry(context.Background(), func() error {
			calls++
			return fatal
		}, fastRetry(5))
		assert.Same(t, fatal, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("respects canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error { return errors.New("x") }, service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBackoff(t *testing.T) {
	b := newBackoff(service.RetryOptions{InitialDelay: 10 * time.Millisecond, MaxDelay: 30 * time.Millisecond, Multiplier: 2})

	plain := errors.New("connection refused")
	assert.Equal(t, 10*time.Millisecond, b.delay(plain))
	assert.Equal(t, 20*time.Millisecond, b.delay(plain))
	assert.Equal(t, 30*time.Millisecond, b.delay(plain))
	assert.Equal(t, 30*time.Millisecond, b.delay(plain))

	fresh := newBackoff(service.RetryOptions{InitialDelay: time.Millisecond, MaxDelay: time.Second})
	assert.Equal(t, time.Second, fresh.delay(fmt.Errorf("quota: %w", ErrRateLimit)))
}

func TestPermanentAndTransient(t *testing.T) {
	cause := errors.New("auth failed")
	assert.False(t, IsRetryable(Permanent(cause)))
	assert.True(t, IsRetryable(Transient(cause)))
	assert.ErrorIs(t, Permanent(cause), cause)
}

func TestUserError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUserError("database query failed", cause)
	assert.Equal(t, "database query failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "no financial emails found", NewUserError("no financial emails found", nil).Error())
}

func TestUserMessage(t *testing.T) {
	wrapped := fmt.Errorf("query: %w", NewUserError("database query failed", ErrNotFound))
	assert.Equal(t, "database query failed", UserMessage(wrapped))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	assert.Empty(t, UserMessage(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestParseLevelDebugAndInvalid(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}
