package store

import "errors"

// Common store errors used across all implementations.
var (
	// ErrJobNotFound is returned when a job id is unknown or its record has
	// expired. Callers must treat this as benign: the record outlived its
	// usefulness, not a fault.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueClosed is returned when enqueueing to a closed queue.
	ErrQueueClosed = errors.New("job queue is closed")

	// ErrQueueFull is returned when the queue cannot accept more job ids.
	ErrQueueFull = errors.New("job queue is full")
)
