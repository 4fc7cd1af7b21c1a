package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml in the working
// directory and from FORGE_-prefixed environment variables, env taking
// precedence. The result is validated before it is returned.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind
	// the secret-bearing keys explicitly; they have no defaults.
	for key, envVar := range map[string]string{
		"fal.api_key":              "FORGE_FAL_API_KEY",
		"replicate.api_token":      "FORGE_REPLICATE_API_TOKEN",
		"replicate.t2i_model":      "FORGE_REPLICATE_T2I_MODEL",
		"replicate.i2i_model":      "FORGE_REPLICATE_I2I_MODEL",
		"cloudinary.cloud_name":    "FORGE_CLOUDINARY_CLOUD_NAME",
		"cloudinary.upload_preset": "FORGE_CLOUDINARY_UPLOAD_PRESET",
		"cloudinary.folder":        "FORGE_CLOUDINARY_FOLDER",
		"store.redis_addr":         "FORGE_STORE_REDIS_ADDR",
	} {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.job_ttl", "1h")
	v.SetDefault("store.redis_prefix", "jobs")
	v.SetDefault("store.redis_queue", "jobs:queue")

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.poll_timeout", "5s")

	v.SetDefault("rate_limit.max", 10)
	v.SetDefault("rate_limit.window", "60s")

	v.SetDefault("fal.t2i_endpoint", "https://fal.run/fal-ai/flux/dev")
	v.SetDefault("fal.i2i_endpoint", "https://fal.run/fal-ai/flux/image-to-image")
	v.SetDefault("fal.timeout", "120s")

	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.timeout", "60s")

	v.SetDefault("ffmpeg.ffmpeg_bin", "ffmpeg")
	v.SetDefault("ffmpeg.ffprobe_bin", "ffprobe")
	v.SetDefault("ffmpeg.scratch_dir", "/tmp/forge")
}
