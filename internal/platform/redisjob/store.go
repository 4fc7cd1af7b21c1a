package redisjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/store"
)

// Store is a Redis-backed store.JobStore. Records are whole-record JSON
// overwrites under <prefix>:<id> with the TTL reapplied on every write, so
// an active job cannot expire mid-processing and a finished one stays
// readable until its TTL elapses.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore creates a Store. prefix defaults to "jobs", ttl to one hour.
func NewStore(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "jobs"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Create generates an id and stores a new PENDING job.
func (s *Store) Create(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (*domain.Job, error) {
	job := domain.NewJob(kind, payload)
	if err := s.write(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns the job or store.ErrJobNotFound when the key is gone.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Update applies the mutation and refreshes the TTL. The read-modify-write
// is not atomic; pop-once queue semantics guarantee a single writer per
// job, so last-writer-wins is all that is needed here.
func (s *Store) Update(ctx context.Context, id string, upd store.JobUpdate) (*domain.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Apply(job, time.Now()) {
		if err := s.write(ctx, job); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func (s *Store) write(ctx context.Context, job *domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.rdb.Set(ctx, s.key(job.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
