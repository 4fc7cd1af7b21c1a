package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/castellan/forge-api/internal/domain"
)

// JobStore persists job records keyed by id with a fixed TTL that is
// reapplied on every write. All writes are whole-record overwrites; a job is
// owned by exactly one worker at a time, so last-writer-wins is sufficient.
type JobStore interface {
	// Create generates an id and stores a new PENDING job.
	Create(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (*domain.Job, error)

	// Get returns the job or ErrJobNotFound if the id is unknown or expired.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// Update applies a mutation to the record and refreshes its TTL.
	// Updating a missing or expired id returns ErrJobNotFound; updating a
	// terminal record is a no-op returning the record unchanged.
	Update(ctx context.Context, id string, upd JobUpdate) (*domain.Job, error)
}

// JobQueue hands job ids from producers to workers in FIFO order.
// Delivery is at-least-once-attempted but not guaranteed: a popped id is
// gone from the queue, so a worker crash between pop and terminal status
// strands the job in RUNNING. There is no redelivery mechanism.
type JobQueue interface {
	// Enqueue appends a job id to the tail of the queue.
	Enqueue(ctx context.Context, id string) error

	// Dequeue pops the head of the queue, waiting up to timeout.
	// ok is false when the wait elapsed with nothing to pop.
	Dequeue(ctx context.Context, timeout time.Duration) (id string, ok bool, err error)
}

// JobUpdate describes a partial mutation of a job record. Nil fields are
// left untouched. Result and Error follow the terminal status: setting
// StatusDone clears Error, setting StatusError clears Result.
type JobUpdate struct {
	Status   *domain.JobStatus
	Stage    *string
	Progress *int
	Result   json.RawMessage
	Error    *string
}

// Apply mutates the job in place and reports whether anything was written.
// Terminal records are never mutated, which enforces the invariant that
// result and error cannot change after completion.
func (u JobUpdate) Apply(j *domain.Job, now time.Time) bool {
	if j.Status.Terminal() {
		return false
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Stage != nil {
		j.Stage = *u.Stage
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.Result != nil {
		j.Result = u.Result
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	switch j.Status {
	case domain.StatusDone:
		j.Error = ""
	case domain.StatusError:
		j.Result = nil
	}
	j.UpdatedAt = now.UTC()
	return true
}

// Mutation helpers for the common single-field updates.

// WithStatus returns an update that only changes the status.
func WithStatus(s domain.JobStatus) JobUpdate {
	return JobUpdate{Status: &s}
}

// WithStage returns an update that marks the job RUNNING in the given stage.
func WithStage(stage string) JobUpdate {
	running := domain.StatusRunning
	return JobUpdate{Status: &running, Stage: &stage}
}

// WithProgress returns an update that records fractional progress within
// the current stage.
func WithProgress(stage string, pct int) JobUpdate {
	running := domain.StatusRunning
	return JobUpdate{Status: &running, Stage: &stage, Progress: &pct}
}

// WithResult returns an update that completes the job with a result.
func WithResult(result json.RawMessage) JobUpdate {
	done := domain.StatusDone
	stage := "done"
	return JobUpdate{Status: &done, Stage: &stage, Result: result}
}

// WithError returns an update that fails the job with a message.
func WithError(msg string) JobUpdate {
	failed := domain.StatusError
	stage := "error"
	return JobUpdate{Status: &failed, Stage: &stage, Error: &msg}
}
