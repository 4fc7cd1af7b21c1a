package generation

import (
	"context"
	"log/slog"
)

// Mode selects which provider operation a call uses.
type Mode int

const (
	// TextToImage generates from a prompt alone.
	TextToImage Mode = iota
	// ImageToImage generates variants of a source image.
	ImageToImage
)

// Failover runs a retry-wrapped call against the primary provider and, only
// when the primary exhausts its retries with a retryable error, makes one
// full retry-wrapped attempt against the fallback. A non-retryable primary
// failure aborts immediately: no retry, no fallback.
type Failover struct {
	Primary  Provider
	Fallback Provider
	Policy   RetryPolicy
	Logger   *slog.Logger
}

// Generate returns the winning provider's name alongside its result. When
// both providers fail, the primary's error is surfaced so the caller sees
// the root cause, not the fallback's.
func (f Failover) Generate(ctx context.Context, mode Mode, req Request) (string, *ProviderResult, error) {
	res, primaryErr := f.Policy.Do(ctx, f.Logger, f.call(ctx, f.Primary, mode, req))
	if primaryErr == nil {
		return f.Primary.Name(), res, nil
	}
	if f.Fallback == nil || !IsRetryable(primaryErr) {
		return "", nil, primaryErr
	}

	if f.Logger != nil {
		f.Logger.Warn("primary provider exhausted, failing over",
			"primary", f.Primary.Name(),
			"fallback", f.Fallback.Name(),
			"error", primaryErr)
	}

	res, fallbackErr := f.Policy.Do(ctx, f.Logger, f.call(ctx, f.Fallback, mode, req))
	if fallbackErr == nil {
		return f.Fallback.Name(), res, nil
	}
	return "", nil, primaryErr
}

func (f Failover) call(ctx context.Context, p Provider, mode Mode, req Request) func() (*ProviderResult, error) {
	return func() (*ProviderResult, error) {
		if mode == ImageToImage {
			return p.ImageToImage(ctx, req)
		}
		return p.TextToImage(ctx, req)
	}
}
