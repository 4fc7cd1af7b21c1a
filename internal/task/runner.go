package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/store"
)

// Handler executes one job kind. A nil error with a result marks the job
// DONE; an error marks it ERROR with the error's message.
type Handler func(ctx context.Context, job *domain.Job) (json.RawMessage, error)

// RunnerConfig holds configuration for the worker pool.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent worker loops run.
	// Zero or negative defaults to 1.
	WorkerCount int

	// PollTimeout bounds each queue wait so loops can re-check for
	// shutdown instead of blocking forever.
	PollTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 2,
		PollTimeout: 5 * time.Second,
	}
}

// Runner is the worker pool. Handlers form a closed dispatch table keyed by
// job kind; a popped job whose kind has no handler fails with ERROR rather
// than being retried, since the queue has no redelivery.
type Runner struct {
	jobs     store.JobStore
	queue    store.JobQueue
	handlers map[domain.JobKind]Handler
	config   RunnerConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner over the given store, queue and dispatch table.
func NewRunner(
	jobs store.JobStore,
	queue store.JobQueue,
	handlers map[domain.JobKind]Handler,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		jobs:     jobs,
		queue:    queue,
		handlers: handlers,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker loops.
func (r *Runner) Start() {
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("worker pool started", "worker_count", r.config.WorkerCount)
}

// Stop cancels all worker loops and waits for them to drain. In-flight
// pipeline work is cancelled through the shared context; an external
// subprocess may outlive the process briefly (best-effort cancellation).
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Info("worker pool stopped")
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	logger := r.logger.With("worker_id", id)
	logger.Debug("starting worker")

	for {
		select {
		case <-r.ctx.Done():
			logger.Debug("stopping worker")
			return
		default:
		}

		jobID, ok, err := r.queue.Dequeue(r.ctx, r.config.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, store.ErrQueueClosed) {
				logger.Debug("queue drained, stopping worker")
				return
			}
			logger.Error("queue pop failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		r.process(jobID, logger)
	}
}

// process runs one job end to end. Every failure path lands in a terminal
// ERROR status; a pipeline that already wrote a terminal status wins because
// terminal records are immutable.
func (r *Runner) process(jobID string, logger *slog.Logger) {
	ctx := r.ctx

	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			logger.Debug("popped id has no record, discarding", "job_id", jobID)
		} else {
			logger.Error("job load failed", "job_id", jobID, "error", err)
		}
		return
	}

	logger = logger.With("job_id", job.ID, "kind", job.Kind)

	if _, err := r.jobs.Update(ctx, job.ID, store.WithStatus(domain.StatusRunning)); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}

	handler, ok := r.handlers[job.Kind]
	if !ok {
		r.fail(ctx, job.ID, fmt.Sprintf("Unknown job kind: %s", job.Kind), logger)
		return
	}

	logger.Info("processing job")
	start := time.Now()

	result, err := r.dispatch(ctx, handler, job)
	if err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		r.fail(ctx, job.ID, err.Error(), logger)
		return
	}

	if _, err := r.jobs.Update(ctx, job.ID, store.WithResult(result)); err != nil {
		logger.Error("failed to store job result", "error", err)
		return
	}
	logger.Info("job completed", "duration", time.Since(start))
}

// dispatch invokes the handler with panic recovery, so a pipeline bug
// surfaces as an ERROR status instead of tearing down the worker.
func (r *Runner) dispatch(ctx context.Context, handler Handler, job *domain.Job) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()
	return handler(ctx, job)
}

func (r *Runner) fail(ctx context.Context, jobID, msg string, logger *slog.Logger) {
	if _, err := r.jobs.Update(ctx, jobID, store.WithError(msg)); err != nil {
		logger.Error("failed to store job error", "error", err)
	}
}
