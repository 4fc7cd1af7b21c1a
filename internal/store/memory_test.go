package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/forge-api/internal/domain"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Hour)
	payload := json.RawMessage(`{"url":"https://example.com/a.mp4"}`)

	job, err := s.Create(context.Background(), domain.KindVideoFilter, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Empty(t, job.Error)
	assert.Nil(t, job.Result)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.KindVideoFilter, got.Kind)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Hour)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	job, err := s.Create(context.Background(), domain.KindImageT2I, json.RawMessage(`{}`))
	require.NoError(t, err)

	// Still readable just inside the window.
	now = now.Add(59 * time.Second)
	_, err = s.Get(context.Background(), job.ID)
	require.NoError(t, err)

	// Expired records look identical to unknown ids.
	now = now.Add(2 * time.Second)
	_, err = s.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = s.Update(context.Background(), job.ID, WithStatus(domain.StatusRunning))
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_UpdateRefreshesTTL(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	job, err := s.Create(context.Background(), domain.KindImageT2I, json.RawMessage(`{}`))
	require.NoError(t, err)

	// A status write 40s in pushes expiry out to the 100s mark, so the
	// record must survive past the original 60s window.
	now = now.Add(40 * time.Second)
	_, err = s.Update(context.Background(), job.ID, WithStage("running"))
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, "running", got.Stage)
}

func TestMemoryStore_TerminalIsImmutable(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Hour)
	job, err := s.Create(context.Background(), domain.KindImageT2I, json.RawMessage(`{}`))
	require.NoError(t, err)

	result := json.RawMessage(`{"images":["https://cdn/x.jpg"]}`)
	done, err := s.Update(context.Background(), job.ID, WithResult(result))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, done.Status)
	assert.JSONEq(t, string(result), string(done.Result))
	assert.Empty(t, done.Error)

	// Any further write is silently ignored.
	after, err := s.Update(context.Background(), job.ID, WithError("late failure"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, after.Status)
	assert.JSONEq(t, string(result), string(after.Result))
	assert.Empty(t, after.Error)
	assert.Equal(t, done.UpdatedAt, after.UpdatedAt)
}

func TestMemoryStore_ResultAndErrorAreExclusive(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Hour)
	job, err := s.Create(context.Background(), domain.KindImageI2I, json.RawMessage(`{}`))
	require.NoError(t, err)

	// Intermediate result-ish state never leaks into a failed record.
	_, err = s.Update(context.Background(), job.ID, WithStage("uploading"))
	require.NoError(t, err)

	failed, err := s.Update(context.Background(), job.ID, WithError("provider exploded"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, failed.Status)
	assert.Equal(t, "provider exploded", failed.Error)
	assert.Nil(t, failed.Result)
}

func TestMemoryQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))
	require.NoError(t, q.Enqueue(ctx, "c"))

	for _, want := range []string{"a", "b", "c"} {
		id, ok, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
}

func TestMemoryQueue_DequeueTimeout(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1)
	start := time.Now()
	id, ok, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemoryQueue_FullAndClosed(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a"))
	err := q.Enqueue(ctx, "b")
	assert.ErrorIs(t, err, ErrQueueFull)

	q.Close()
	err = q.Enqueue(ctx, "c")
	assert.ErrorIs(t, err, ErrQueueClosed)

	// Pending ids stay readable after close.
	id, ok, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", id)
}

func TestMemoryQueue_EnqueueRacingCloseDoesNotPanic(t *testing.T) {
	t.Parallel()

	// Hammer Enqueue from many goroutines while Close runs concurrently.
	// Every call must return cleanly: nil before the close wins, then
	// ErrQueueClosed, never a send on a closed channel.
	for i := 0; i < 50; i++ {
		q := NewMemoryQueue(1024)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make([]error, 16)
		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				errs[g] = q.Enqueue(ctx, "id")
			}(g)
		}
		q.Close()
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, ErrQueueClosed)
			}
		}
	}
}

func TestMemoryQueue_DequeueCancelled(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
