package generation

import (
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the generation package.
var (
	// ErrNoImages is returned when a provider response contains no usable
	// media URLs in any of its known shapes.
	ErrNoImages = errors.New("no images in provider response")

	// ErrNothingRehosted is returned when every generated media item failed
	// to re-host. Individual re-host failures are dropped silently.
	ErrNothingRehosted = errors.New("no generated media could be re-hosted")

	// ErrAllBatchItemsFailed is the terminal error for a batch job in which
	// every source image failed generation.
	ErrAllBatchItemsFailed = errors.New("All batch items failed")
)

// ProviderError is a failure reported by an external generation backend.
// Retryable distinguishes transient upstream failure (5xx, polling timeout)
// from permanent rejection (4xx, misconfiguration); the retry policy reads
// only this flag, never the message.
type ProviderError struct {
	Provider   string
	Message    string
	Retryable  bool
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRetryable classifies an error for the retry policy. Provider errors
// carry their own flag; connection and timeout failures are always
// retryable; everything else is permanent.
func IsRetryable(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return false
}
