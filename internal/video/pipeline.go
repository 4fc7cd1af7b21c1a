package video

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/generation"
	"github.com/castellan/forge-api/internal/media"
	"github.com/castellan/forge-api/internal/store"
)

// Result is the success payload of a video_filter job.
type Result struct {
	OutputURL string  `json:"output_url"`
	Preset    string  `json:"preset"`
	Intensity float64 `json:"intensity"`
	SubstitutionFlags
}

// transcoder is the slice of Tool the pipeline needs; tests fake it.
type transcoder interface {
	Available(ctx context.Context) bool
	SupportsFilter(ctx context.Context, name string) bool
	Duration(ctx context.Context, path string) (float64, error)
	Encode(ctx context.Context, srcPath, chain, dstPath string, onLine func(string)) error
}

// Pipeline executes video_filter jobs: download, resolve the filter chain,
// encode with progress reporting, re-host the output.
type Pipeline struct {
	jobs       store.JobStore
	tool       transcoder
	uploader   generation.Uploader
	client     *http.Client
	scratchDir string
	logger     *slog.Logger

	// progressInterval throttles job progress writes.
	progressInterval time.Duration
}

// NewPipeline wires a Pipeline. client may be nil for the default.
func NewPipeline(
	jobs store.JobStore,
	tool *Tool,
	uploader generation.Uploader,
	client *http.Client,
	scratchDir string,
	logger *slog.Logger,
) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pipeline{
		jobs:             jobs,
		tool:             tool,
		uploader:         uploader,
		client:           client,
		scratchDir:       scratchDir,
		logger:           logger,
		progressInterval: 500 * time.Millisecond,
	}
}

// Process handles one video_filter job.
func (p *Pipeline) Process(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload domain.VideoFilterPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	if !p.tool.Available(ctx) {
		return nil, ErrUnavailable
	}

	p.setStage(ctx, job.ID, "downloading")
	src := filepath.Join(p.scratchDir, media.UUIDName("src", media.ExtFromURL(payload.URL, ".mp4")))
	if err := media.Download(ctx, p.client, payload.URL, src); err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	defer func() { _ = os.Remove(src) }()

	preset := ResolvePreset(payload.Preset)
	intensity := 0.0
	if payload.Intensity != nil {
		intensity = *payload.Intensity
	}
	chain, flags := BuildChain(preset, intensity, func(name string) bool {
		return p.tool.SupportsFilter(ctx, name)
	})

	duration, err := p.tool.Duration(ctx, src)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("duration probe failed, progress will be approximate",
				"job_id", job.ID, "error", err)
		}
		duration = 0
	}

	p.setStage(ctx, job.ID, "encoding")
	dst := filepath.Join(p.scratchDir, media.UUIDName("flt_vid_out", ".mp4"))
	defer func() { _ = os.Remove(dst) }()

	tracker := newProgressTracker(duration, p.progressInterval)
	err = p.tool.Encode(ctx, src, chain, dst, func(line string) {
		if pct, ok := tracker.Feed(line); ok {
			p.setProgress(ctx, job.ID, pct)
		}
	})
	if err != nil {
		return nil, err
	}
	p.setProgress(ctx, job.ID, 100)

	p.setStage(ctx, job.ID, "uploading")
	outputURL, err := p.uploader.UploadFile(ctx, dst, "video")
	if err != nil {
		return nil, fmt.Errorf("re-host output: %w", err)
	}

	res := Result{
		OutputURL:         outputURL,
		Preset:            preset.Name,
		Intensity:         intensity,
		SubstitutionFlags: flags,
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

func (p *Pipeline) setStage(ctx context.Context, jobID, stage string) {
	if _, err := p.jobs.Update(ctx, jobID, store.WithStage(stage)); err != nil && p.logger != nil {
		p.logger.Debug("stage update skipped", "job_id", jobID, "stage", stage, "error", err)
	}
}

func (p *Pipeline) setProgress(ctx context.Context, jobID string, pct int) {
	if _, err := p.jobs.Update(ctx, jobID, store.WithProgress("encoding", pct)); err != nil && p.logger != nil {
		p.logger.Debug("progress update skipped", "job_id", jobID, "pct", pct, "error", err)
	}
}
