package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryRetryable_SucceedsAfterTransientError(t *testing.T) {
	// Given: a fetch that fails once then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 2 {
			return FetchFailed("503 Service Unavailable", nil)
		}
		return nil
	}

	// When: retrying
	err := RetryRetryable(context.Background(), fastRetry(), fn)

	// Then: succeeds on the second attempt
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryRetryable_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := RetryRetryable(context.Background(), fastRetry(), func() error {
		attempts++
		return EngineMissingExport("search module", "search_cached")
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeEngineMissingExport, GetCode(err))
}

func TestRetryRetryable_ReturnsLastErrorWhenExhausted(t *testing.T) {
	attempts := 0
	err := RetryRetryable(context.Background(), fastRetry(), func() error {
		attempts++
		return FetchFailed("404 Not Found", nil)
	})

	assert.Equal(t, 3, attempts) // initial + 2 retries
	assert.Equal(t, ErrCodeFetchFailed, GetCode(err))
}

func TestRetryRetryable_PlainErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	err := RetryRetryable(context.Background(), fastRetry(), func() error {
		attempts++
		return errors.New("plain")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryRetryable_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialDelay = time.Hour

	attempts := 0
	err := RetryRetryable(ctx, cfg, func() error {
		attempts++
		cancel()
		return FetchFailed("timeout", nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
