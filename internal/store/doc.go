// Package store defines interfaces for job persistence and queueing.
// These interfaces abstract the underlying storage mechanism from the
// worker and pipeline logic, so the same code runs against the in-memory
// implementations in tests and the Redis-backed ones in production.
package store
