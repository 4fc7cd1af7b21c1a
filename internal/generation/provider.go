package generation

import "context"

// Request carries the inputs for one generation call. ImageURL and Strength
// are only meaningful for image-to-image.
type Request struct {
	Prompt      string
	ImageURL    string
	Strength    float64
	AspectRatio string
	Steps       int
	Seed        *int64
}

// ProviderResult is the ephemeral outcome of one provider call: source
// media URLs on the provider's CDN plus a small metadata map (model id,
// seed, aspect ratio). It is folded into the job result after re-hosting.
type ProviderResult struct {
	URLs []string
	Meta map[string]any
}

// Provider is a uniform interface over one external image-generation
// backend. Implementations translate Request into the backend's submission
// shape and normalize its response; they must return a *ProviderError (or a
// transport error) on failure so the retry policy can classify it.
type Provider interface {
	// Name identifies the backend in results and logs.
	Name() string

	// TextToImage generates images from a prompt alone.
	TextToImage(ctx context.Context, req Request) (*ProviderResult, error)

	// ImageToImage generates variants of req.ImageURL guided by the prompt.
	ImageToImage(ctx context.Context, req Request) (*ProviderResult, error)
}

// Uploader re-hosts a local scratch file on a persistent store and returns
// its durable URL. The concrete implementation lives in
// internal/platform/cloudinary.
type Uploader interface {
	UploadFile(ctx context.Context, path string, resourceType string) (string, error)
}
