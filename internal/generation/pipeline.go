package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/media"
	"github.com/castellan/forge-api/internal/store"
)

// Result is the success payload of a single-image generation job.
type Result struct {
	Provider string         `json:"provider"`
	Images   []string       `json:"images"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// BatchItem is the per-source outcome inside an avatar_batch result.
type BatchItem struct {
	SourceImageURL  string         `json:"source_image_url"`
	GeneratedImages []string       `json:"generated_images"`
	Meta            map[string]any `json:"meta,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// BatchSummary aggregates an avatar_batch run.
type BatchSummary struct {
	CountSources     int `json:"count_sources"`
	VariantsPerImage int `json:"variants_per_image"`
	TotalGenerated   int `json:"total_generated"`
}

// BatchResult is the success payload of an avatar_batch job.
type BatchResult struct {
	Provider string       `json:"provider"`
	Items    []BatchItem  `json:"items"`
	Summary  BatchSummary `json:"summary"`
}

// Pipeline executes the AI generation job kinds: it validates nothing (the
// producer already did), invokes the failover-wrapped providers, re-hosts
// every generated URL on the persistent store, and reports stages through
// the job store.
type Pipeline struct {
	jobs       store.JobStore
	failover   Failover
	uploader   Uploader
	client     *http.Client
	scratchDir string
	logger     *slog.Logger
}

// NewPipeline wires a Pipeline. client may be nil for the default.
func NewPipeline(
	jobs store.JobStore,
	failover Failover,
	uploader Uploader,
	client *http.Client,
	scratchDir string,
	logger *slog.Logger,
) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pipeline{
		jobs:       jobs,
		failover:   failover,
		uploader:   uploader,
		client:     client,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// TextToImage handles an image_t2i job.
func (p *Pipeline) TextToImage(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload domain.TextToImagePayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	req := Request{
		Prompt:      payload.Prompt,
		AspectRatio: payload.AspectRatio,
		Steps:       payload.Steps,
		Seed:        payload.Seed,
	}
	return p.generateAndRehost(ctx, job, TextToImage, req)
}

// ImageToImage handles an image_i2i job.
func (p *Pipeline) ImageToImage(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload domain.ImageToImagePayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	req := Request{
		Prompt:      payload.Prompt,
		ImageURL:    payload.ImageURL,
		Strength:    floatValue(payload.Strength),
		AspectRatio: payload.AspectRatio,
		Steps:       payload.Steps,
		Seed:        payload.Seed,
	}
	return p.generateAndRehost(ctx, job, ImageToImage, req)
}

func (p *Pipeline) generateAndRehost(ctx context.Context, job *domain.Job, mode Mode, req Request) (json.RawMessage, error) {
	p.setStage(ctx, job.ID, "generating")

	provider, res, err := p.failover.Generate(ctx, mode, req)
	if err != nil {
		return nil, err
	}

	p.setStage(ctx, job.ID, "uploading")

	hosted := p.rehost(ctx, res.URLs)
	if len(hosted) == 0 {
		return nil, ErrNothingRehosted
	}

	return marshalResult(Result{Provider: provider, Images: hosted, Meta: res.Meta})
}

// AvatarBatch handles an avatar_batch job: sources are processed
// sequentially, a failing source stops its own variants early but never the
// batch, and the job succeeds as long as one source produced one image.
func (p *Pipeline) AvatarBatch(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	var payload domain.AvatarBatchPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}

	items := make([]BatchItem, 0, len(payload.ImageURLs))
	succeeded := 0

	for i, srcURL := range payload.ImageURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.setStage(ctx, job.ID, fmt.Sprintf("batch %d/%d", i+1, len(payload.ImageURLs)))

		item := BatchItem{SourceImageURL: srcURL, GeneratedImages: []string{}}
		req := Request{
			Prompt:      payload.Prompt,
			ImageURL:    srcURL,
			Strength:    floatValue(payload.Strength),
			AspectRatio: payload.AspectRatio,
			Steps:       payload.Steps,
			Seed:        payload.Seed,
		}

		for v := 0; v < payload.VariantsPerImage; v++ {
			provider, res, err := p.failover.Generate(ctx, ImageToImage, req)
			if err != nil {
				item.Error = err.Error()
				break
			}
			item.GeneratedImages = append(item.GeneratedImages, p.rehost(ctx, res.URLs)...)
			meta := map[string]any{"provider": provider}
			for k, val := range res.Meta {
				meta[k] = val
			}
			item.Meta = meta
		}

		if len(item.GeneratedImages) > 0 {
			succeeded++
		}
		items = append(items, item)
	}

	if succeeded == 0 {
		return nil, ErrAllBatchItemsFailed
	}

	total := 0
	for _, it := range items {
		total += len(it.GeneratedImages)
	}
	return marshalResult(BatchResult{
		Provider: "mixed",
		Items:    items,
		Summary: BatchSummary{
			CountSources:     len(payload.ImageURLs),
			VariantsPerImage: payload.VariantsPerImage,
			TotalGenerated:   total,
		},
	})
}

// rehost downloads each generated URL to scratch and re-uploads it to the
// persistent store. Scratch files are removed on every exit path. Items
// that fail are dropped; the caller decides whether an empty result is
// fatal.
func (p *Pipeline) rehost(ctx context.Context, urls []string) []string {
	hosted := make([]string, 0, len(urls))
	for _, u := range urls {
		durable, err := p.rehostOne(ctx, u)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("dropping media item, re-host failed", "url", u, "error", err)
			}
			continue
		}
		hosted = append(hosted, durable)
	}
	return hosted
}

func (p *Pipeline) rehostOne(ctx context.Context, url string) (string, error) {
	ext := ".jpg"
	if strings.HasSuffix(strings.ToLower(url), ".png") {
		ext = ".png"
	}
	dst := filepath.Join(p.scratchDir, media.UUIDName("ai_out", ext))
	defer func() { _ = os.Remove(dst) }()

	if err := media.Download(ctx, p.client, url, dst); err != nil {
		return "", err
	}
	return p.uploader.UploadFile(ctx, dst, "image")
}

// setStage records a sub-phase label; failures are ignored since the record
// may already have expired and stage is informational only.
func (p *Pipeline) setStage(ctx context.Context, jobID, stage string) {
	if _, err := p.jobs.Update(ctx, jobID, store.WithStage(stage)); err != nil && p.logger != nil {
		p.logger.Debug("stage update skipped", "job_id", jobID, "stage", stage, "error", err)
	}
}

// floatValue dereferences an optional payload field. The producer fills
// defaults before enqueue, so nil only occurs for records written by older
// builds; those fall back to zero rather than failing the job.
func floatValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func marshalResult(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}
