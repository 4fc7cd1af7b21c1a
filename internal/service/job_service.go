package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/store"
)

// Defaults applied before validation, mirroring the producer API contract.
// They fill omitted fields only: an explicit zero intensity or strength is a
// valid value and is preserved.
const (
	DefaultSteps            = 30
	DefaultAspectRatio      = "1:1"
	DefaultStrength         = 0.6
	DefaultBatchStrength    = 0.55
	DefaultVariantsPerImage = 1
	DefaultIntensity        = 0.7
)

// ErrJobNotFound indicates the job id is unknown or its record expired.
// Callers present this as a benign shape, not a failure.
var ErrJobNotFound = errors.New("job not found")

// JobService creates jobs and reads their status.
type JobService struct {
	jobs     store.JobStore
	queue    store.JobQueue
	validate *validator.Validate
	logger   *slog.Logger
}

// NewJobService wires a JobService with its own validator instance.
func NewJobService(jobs store.JobStore, queue store.JobQueue, logger *slog.Logger) *JobService {
	return &JobService{
		jobs:     jobs,
		queue:    queue,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// CreateVideoFilter validates and enqueues a video_filter job.
func (s *JobService) CreateVideoFilter(ctx context.Context, payload domain.VideoFilterPayload) (*domain.Job, error) {
	if payload.Intensity == nil {
		payload.Intensity = floatPtr(DefaultIntensity)
	}
	return s.create(ctx, domain.KindVideoFilter, payload)
}

// CreateTextToImage validates and enqueues an image_t2i job.
func (s *JobService) CreateTextToImage(ctx context.Context, payload domain.TextToImagePayload) (*domain.Job, error) {
	applyT2IDefaults(&payload)
	return s.create(ctx, domain.KindImageT2I, payload)
}

// CreateImageToImage validates and enqueues an image_i2i job.
func (s *JobService) CreateImageToImage(ctx context.Context, payload domain.ImageToImagePayload) (*domain.Job, error) {
	if payload.Steps == 0 {
		payload.Steps = DefaultSteps
	}
	if payload.AspectRatio == "" {
		payload.AspectRatio = DefaultAspectRatio
	}
	if payload.Strength == nil {
		payload.Strength = floatPtr(DefaultStrength)
	}
	return s.create(ctx, domain.KindImageI2I, payload)
}

// CreateAvatarBatch validates and enqueues an avatar_batch job.
func (s *JobService) CreateAvatarBatch(ctx context.Context, payload domain.AvatarBatchPayload) (*domain.Job, error) {
	if payload.Steps == 0 {
		payload.Steps = DefaultSteps
	}
	if payload.AspectRatio == "" {
		payload.AspectRatio = DefaultAspectRatio
	}
	if payload.Strength == nil {
		payload.Strength = floatPtr(DefaultBatchStrength)
	}
	if payload.VariantsPerImage == 0 {
		payload.VariantsPerImage = DefaultVariantsPerImage
	}
	return s.create(ctx, domain.KindAvatarBatch, payload)
}

func applyT2IDefaults(p *domain.TextToImagePayload) {
	if p.Steps == 0 {
		p.Steps = DefaultSteps
	}
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
}

func floatPtr(v float64) *float64 { return &v }

// create is the shared producer path: validate, persist PENDING, enqueue.
func (s *JobService) create(ctx context.Context, kind domain.JobKind, payload any) (*domain.Job, error) {
	if err := s.validate.StructCtx(ctx, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	job, err := s.jobs.Create(ctx, kind, raw)
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The record exists but will never be picked up; fail it so the
		// status endpoint doesn't show an eternal PENDING.
		if _, uerr := s.jobs.Update(ctx, job.ID, store.WithError("enqueue failed")); uerr != nil {
			s.logger.Error("failed to mark unenqueued job", "job_id", job.ID, "error", uerr)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job enqueued", "job_id", job.ID, "kind", kind)
	return job, nil
}

// Get returns the full job record, mapping missing records to
// ErrJobNotFound.
func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	if id == "" {
		return nil, ErrJobNotFound
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}
