package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies which pipeline processes a job. The set is closed;
// dispatch tables are keyed on it and checked exhaustively.
type JobKind string

// Supported job kinds.
const (
	KindVideoFilter JobKind = "video_filter"
	KindImageT2I    JobKind = "image_t2i"
	KindImageI2I    JobKind = "image_i2i"
	KindAvatarBatch JobKind = "avatar_batch"
)

// Kinds returns every valid job kind.
func Kinds() []JobKind {
	return []JobKind{KindVideoFilter, KindImageT2I, KindImageI2I, KindAvatarBatch}
}

// ParseKind validates a kind string against the closed set.
func ParseKind(s string) (JobKind, error) {
	k := JobKind(s)
	switch k {
	case KindVideoFilter, KindImageT2I, KindImageI2I, KindAvatarBatch:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// JobStatus represents the current state of a job.
type JobStatus string

// Job lifecycle: PENDING -> RUNNING -> DONE | ERROR.
const (
	StatusPending JobStatus = "PENDING"
	StatusRunning JobStatus = "RUNNING"
	StatusDone    JobStatus = "DONE"
	StatusError   JobStatus = "ERROR"
)

// Terminal reports whether the status is final. A terminal record never
// changes again.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is a durable record describing one unit of asynchronous work.
//
// Result and Error are mutually exclusive: both are empty while the job is
// non-terminal, and exactly one is set once it is. ID is immutable after
// creation. UpdatedAt changes on every status write.
type Job struct {
	ID        string          `json:"job_id"`
	Kind      JobKind         `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    JobStatus       `json:"status"`
	Stage     string          `json:"stage,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewJob creates a pending job with a fresh id and the given payload.
func NewJob(kind JobKind, payload json.RawMessage) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DecodePayload unmarshals the job payload into the given struct.
func (j *Job) DecodePayload(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
