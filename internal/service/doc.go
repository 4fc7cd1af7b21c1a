// Package service is the producer side of the job engine: it applies
// payload defaults, validates, persists a PENDING job record and pushes its
// id onto the work queue. The read path returns the full record and maps a
// missing or expired id to a benign not-found.
package service
