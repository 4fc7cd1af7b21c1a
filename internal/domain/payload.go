package domain

// Kind-specific job payloads. Each is validated by the producer before the
// job is created, so pipelines can trust the ranges at execution time.
// Defaults are applied by the service layer prior to validation. Intensity
// and Strength are pointers so an explicit zero, which is valid, can be
// told apart from an omitted field.

// VideoFilterPayload is the input for a video_filter job.
type VideoFilterPayload struct {
	URL       string   `json:"url"       validate:"required,url"`
	Preset    string   `json:"preset"    validate:"required"`
	Intensity *float64 `json:"intensity" validate:"required,gte=0,lte=1"`
}

// TextToImagePayload is the input for an image_t2i job.
type TextToImagePayload struct {
	Prompt      string `json:"prompt"       validate:"required"`
	AspectRatio string `json:"aspect_ratio" validate:"required,oneof=1:1 3:4 4:3 9:16 16:9 5:8"`
	Steps       int    `json:"steps"        validate:"gte=10,lte=50"`
	Seed        *int64 `json:"seed,omitempty"`
}

// ImageToImagePayload is the input for an image_i2i job.
type ImageToImagePayload struct {
	ImageURL    string   `json:"image_url"    validate:"required,url"`
	Prompt      string   `json:"prompt"       validate:"required"`
	Strength    *float64 `json:"strength"     validate:"required,gte=0,lte=1"`
	AspectRatio string   `json:"aspect_ratio" validate:"required,oneof=1:1 3:4 4:3 9:16 16:9 5:8"`
	Steps       int      `json:"steps"        validate:"gte=10,lte=50"`
	Seed        *int64   `json:"seed,omitempty"`
}

// AvatarBatchPayload is the input for an avatar_batch job: a set of source
// images, each expanded into VariantsPerImage image-to-image generations.
type AvatarBatchPayload struct {
	ImageURLs        []string `json:"image_urls"         validate:"required,min=15,max=50,dive,required,url"`
	Prompt           string   `json:"prompt"             validate:"required"`
	Strength         *float64 `json:"strength"           validate:"required,gte=0,lte=1"`
	AspectRatio      string   `json:"aspect_ratio"       validate:"required,oneof=1:1 3:4 4:3 9:16 16:9 5:8"`
	Steps            int      `json:"steps"              validate:"gte=10,lte=50"`
	VariantsPerImage int      `json:"variants_per_image" validate:"gte=1,lte=4"`
	Seed             *int64   `json:"seed,omitempty"`
}
