// Package media provides scratch-file helpers for pipelines: naming,
// extension guessing, and size-capped downloads with atomic writes.
package media
