package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/castellan/forge-api/internal/domain"
)

// MemoryStore is an in-memory JobStore with real TTL semantics. It backs
// tests and single-process deployments; production uses the Redis store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

type memoryEntry struct {
	job       domain.Job
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore whose records expire ttl after their
// last write.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]memoryEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create generates an id and stores a new PENDING job.
func (s *MemoryStore) Create(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (*domain.Job, error) {
	job := domain.NewJob(kind, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = memoryEntry{job: *job, expiresAt: s.now().Add(s.ttl)}

	out := *job
	return &out, nil
}

// Get returns the job or ErrJobNotFound if the id is unknown or expired.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	out := entry.job
	return &out, nil
}

// Update applies the mutation and refreshes the record's TTL. Terminal
// records are returned unchanged.
func (s *MemoryStore) Update(ctx context.Context, id string, upd JobUpdate) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	job := entry.job
	if upd.Apply(&job, s.now()) {
		s.jobs[id] = memoryEntry{job: job, expiresAt: s.now().Add(s.ttl)}
	}
	out := job
	return &out, nil
}

// live returns the entry if present and not expired, dropping stale ones.
func (s *MemoryStore) live(id string) (memoryEntry, bool) {
	entry, ok := s.jobs[id]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.jobs, id)
		return memoryEntry{}, false
	}
	return entry, true
}

// MemoryQueue is a bounded FIFO JobQueue backed by a channel. Like its
// Redis counterpart it has pop-once semantics: a dequeued id is gone.
type MemoryQueue struct {
	mu     sync.Mutex
	ids    chan string
	closed bool
}

// NewMemoryQueue creates a queue with the given capacity.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 128
	}
	return &MemoryQueue{ids: make(chan string, size)}
}

// Enqueue appends a job id, failing fast when the queue is full or closed.
// The lock is held across the send so Close cannot slip in between the
// closed check and the send; the send never blocks, so this is safe.
func (q *MemoryQueue) Enqueue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Dequeue pops the oldest id, waiting up to timeout. The bounded wait lets
// worker loops re-check for shutdown instead of blocking forever.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id, ok := <-q.ids:
		if !ok {
			return "", false, ErrQueueClosed
		}
		return id, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Close stops the queue; pending ids remain readable until drained.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ids)
	}
}
