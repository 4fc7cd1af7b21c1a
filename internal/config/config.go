package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Store      StoreConfig      `mapstructure:"store" validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker" validate:"required"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" validate:"required"`
	Fal        FalConfig        `mapstructure:"fal"`
	Replicate  ReplicateConfig  `mapstructure:"replicate"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// StoreConfig selects the job record store and queue backend.
type StoreConfig struct {
	// Backend is "memory" for single-process deployments and tests,
	// "redis" for anything that has to survive a restart.
	Backend     string        `mapstructure:"backend" validate:"required,oneof=memory redis"`
	JobTTL      time.Duration `mapstructure:"job_ttl" validate:"required,gt=0"`
	RedisAddr   string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisQueue  string        `mapstructure:"redis_queue"`
}

// WorkerConfig sizes the background job runner.
type WorkerConfig struct {
	Count       int           `mapstructure:"count" validate:"required,gte=1,lte=64"`
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"required,gt=0"`
}

// RateLimitConfig bounds producer-route traffic per client IP.
type RateLimitConfig struct {
	Max    int           `mapstructure:"max" validate:"required,gte=1"`
	Window time.Duration `mapstructure:"window" validate:"required,gt=0"`
}

// FalConfig configures the fal.ai provider. An empty APIKey leaves the
// provider unconfigured; submitted generation jobs then fail cleanly.
type FalConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	T2IEndpoint string        `mapstructure:"t2i_endpoint" validate:"omitempty,url"`
	I2IEndpoint string        `mapstructure:"i2i_endpoint" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ReplicateConfig configures the Replicate fallback provider.
type ReplicateConfig struct {
	APIToken string        `mapstructure:"api_token"`
	T2IModel string        `mapstructure:"t2i_model"`
	I2IModel string        `mapstructure:"i2i_model"`
	BaseURL  string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CloudinaryConfig configures unsigned uploads for re-hosting outputs.
type CloudinaryConfig struct {
	CloudName    string `mapstructure:"cloud_name"`
	UploadPreset string `mapstructure:"upload_preset"`
	Folder       string `mapstructure:"folder"`
}

// FFmpegConfig locates the transcoder binaries and scratch space.
type FFmpegConfig struct {
	FFmpegBin  string `mapstructure:"ffmpeg_bin" validate:"required"`
	FFprobeBin string `mapstructure:"ffprobe_bin" validate:"required"`
	ScratchDir string `mapstructure:"scratch_dir" validate:"required"`
}
