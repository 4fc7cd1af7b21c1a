package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Store.JobTTL)
	assert.Equal(t, "jobs", cfg.Store.RedisPrefix)
	assert.Equal(t, "jobs:queue", cfg.Store.RedisQueue)
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollTimeout)
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "https://fal.run/fal-ai/flux/image-to-image", cfg.Fal.I2IEndpoint)
	assert.Equal(t, "https://api.replicate.com/v1", cfg.Replicate.BaseURL)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.FFmpegBin)
	assert.Equal(t, "/tmp/forge", cfg.FFmpeg.ScratchDir)

	// Secrets have no defaults.
	assert.Empty(t, cfg.Fal.APIKey)
	assert.Empty(t, cfg.Cloudinary.CloudName)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("FORGE_SERVER_PORT", "9090")
	t.Setenv("FORGE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("FORGE_STORE_JOB_TTL", "30m")
	t.Setenv("FORGE_WORKER_COUNT", "8")
	t.Setenv("FORGE_FAL_API_KEY", "key-from-env")
	t.Setenv("FORGE_CLOUDINARY_CLOUD_NAME", "demo-cloud")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.Store.JobTTL)
	assert.Equal(t, 8, cfg.Worker.Count)
	assert.Equal(t, "key-from-env", cfg.Fal.APIKey)
	assert.Equal(t, "demo-cloud", cfg.Cloudinary.CloudName)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
	}{
		{"port out of range", "FORGE_SERVER_PORT", "70000"},
		{"unknown log level", "FORGE_SERVER_LOG_LEVEL", "trace"},
		{"unknown backend", "FORGE_STORE_BACKEND", "postgres"},
		{"zero workers", "FORGE_WORKER_COUNT", "0"},
		{"bad fal endpoint", "FORGE_FAL_T2I_ENDPOINT", "not-a-url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.envVar, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RedisBackendRequiresAddr(t *testing.T) {
	t.Setenv("FORGE_STORE_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("FORGE_STORE_REDIS_ADDR", "localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
}
