package redisjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a Redis-list work queue: RPUSH to the tail, blocking BLPOP from
// the head. Pop-once semantics mean at most one worker owns a given id.
type Queue struct {
	rdb *redis.Client
	key string
}

// NewQueue creates a Queue on the given list key (default "jobs:queue").
func NewQueue(rdb *redis.Client, key string) *Queue {
	if key == "" {
		key = "jobs:queue"
	}
	return &Queue{rdb: rdb, key: key}
}

// Enqueue appends a job id to the tail of the list.
func (q *Queue) Enqueue(ctx context.Context, id string) error {
	if err := q.rdb.RPush(ctx, q.key, id).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Dequeue pops the head of the list, blocking server-side up to timeout.
// BLPOP's bounded wait lets worker loops re-check for shutdown instead of
// blocking forever.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	vals, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis blpop: %w", err)
	}
	// BLPOP returns [key, value].
	if len(vals) != 2 {
		return "", false, fmt.Errorf("redis blpop: unexpected reply %v", vals)
	}
	return vals[1], true, nil
}
