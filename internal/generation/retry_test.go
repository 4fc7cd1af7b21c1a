package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noSleep makes retry delays instantaneous and records them.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetryPolicy_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, sleep: noSleep(&delays)}

	calls := 0
	res, err := policy.Do(context.Background(), testLogger(), func() (*ProviderResult, error) {
		calls++
		if calls < 3 {
			return nil, &ProviderError{Provider: "fal", Message: "upstream 5xx", Retryable: true, StatusCode: 502}
		}
		return &ProviderResult{URLs: []string{"https://cdn/img.jpg"}}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, res.URLs, 1)
	// Increasing delays: base, then 2*base.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRetryPolicy_NonRetryableAbortsImmediately(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, sleep: noSleep(&delays)}

	calls := 0
	permanent := &ProviderError{Provider: "fal", Message: "bad request", Retryable: false, StatusCode: 400}
	_, err := policy.Do(context.Background(), testLogger(), func() (*ProviderResult, error) {
		calls++
		return nil, permanent
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 400, perr.StatusCode)
}

func TestRetryPolicy_ExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, sleep: noSleep(&delays)}

	calls := 0
	_, err := policy.Do(context.Background(), testLogger(), func() (*ProviderResult, error) {
		calls++
		return nil, &ProviderError{Provider: "fal", Message: "still down", Retryable: true, StatusCode: 503}
	})

	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still down")
}

func TestRetryPolicy_CancelledDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Hour}
	_, err := policy.Do(ctx, testLogger(), func() (*ProviderResult, error) {
		return nil, &ProviderError{Message: "transient", Retryable: true}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(&ProviderError{Retryable: true, StatusCode: 502}))
	assert.False(t, IsRetryable(&ProviderError{Retryable: false, StatusCode: 401}))
	assert.True(t, IsRetryable(&timeoutError{}))
	assert.False(t, IsRetryable(errors.New("plain failure")))
}

// timeoutError mimics a transport-level timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
