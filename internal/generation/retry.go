package generation

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy wraps a provider call with bounded retries. Only errors the
// predicate flags as retryable are retried; each retry is preceded by an
// increasing delay (BaseDelay, 2*BaseDelay, ...). One policy instance is
// shared by every call site instead of ad hoc per-call loops.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry; attempt n waits
	// (n+1)*BaseDelay.
	BaseDelay time.Duration

	// Retryable decides whether a failure is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool

	// sleep is swappable in tests to avoid wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the production settings: two retries with a
// one-second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: time.Second}
}

// Do invokes fn until it succeeds, fails permanently, or retries are
// exhausted. The last error is returned unchanged so callers see the real
// failure, not a retry wrapper.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func() (*ProviderResult, error)) (*ProviderResult, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt >= p.MaxRetries || !retryable(err) {
			break
		}

		delay := time.Duration(attempt+1) * p.BaseDelay
		if logger != nil {
			logger.Warn("provider call failed, retrying",
				"attempt", attempt+1,
				"max_attempts", p.MaxRetries+1,
				"delay", delay,
				"error", err)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
