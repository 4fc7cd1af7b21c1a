package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a request payload fails validation.
	// Validation failures are rejected before a job is created and are
	// never retried.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownKind is returned when a job kind is outside the closed set.
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrInvalidPayload is returned when a stored payload cannot be decoded
	// into the shape its kind requires.
	ErrInvalidPayload = errors.New("invalid job payload")
)
