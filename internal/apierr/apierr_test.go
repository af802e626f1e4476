package apierr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{200, nil},
		{204, nil},
		{400, ErrBadRequest},
		{413, ErrPayloadTooLarge},
		{401, ErrAuthFailed},
		{403, ErrAuthFailed},
		{429, ErrRateLimit},
		{500, ErrTimeout},
		{503, ErrTimeout},
		{418, ErrBadRequest},
	}
	for _, tc := range cases {
		got := ClassifyStatus(tc.status, "")
		if tc.want == nil {
			assert.NoError(t, got)
			continue
		}
		assert.ErrorIs(t, got, tc.want)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(ErrBadRequest))
	assert.False(t, IsRetryable(ErrPayloadTooLarge))
	assert.False(t, IsRetryable(ErrAuthFailed))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrSilentFailure))
	assert.True(t, IsRetryable(errors.New("unclassified")))
}

func TestRetryWithBackoff_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, attempts, err := RetryWithBackoff(context.Background(), RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(attempt int) (string, error) {
			calls++
			return "ok", nil
		},
		func(error) bool { return true },
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	result, attempts, err := RetryWithBackoff(context.Background(), RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(attempt int) (int, error) {
			calls++
			if calls < 3 {
				return 0, ErrTimeout
			}
			return 42, nil
		},
		IsRetryable,
	)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsImmediatelyOnNonRetryable(t *testing.T) {
	calls := 0
	_, _, err := RetryWithBackoff(context.Background(), RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(attempt int) (int, error) {
			calls++
			return 0, ErrBadRequest
		},
		IsRetryable,
	)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, attempts, err := RetryWithBackoff(context.Background(), RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(attempt int) (int, error) {
			calls++
			return 0, ErrTimeout
		},
		IsRetryable,
	)
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := RetryWithBackoff(ctx, RetryConfig{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond},
		func(attempt int) (int, error) {
			if attempt == 0 {
				return 0, ErrTimeout
			}
			return 1, nil
		},
		IsRetryable,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
