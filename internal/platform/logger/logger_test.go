package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/forge-api/internal/config"
)

func TestSetup_LevelParsing(t *testing.T) {
	tests := []struct {
		configured string
		want       slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range tests {
		t.Run(tc.configured, func(t *testing.T) {
			logger := Setup(config.ServerConfig{Port: 8000, LogLevel: tc.configured})
			require.NotNil(t, logger)

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tc.want))
			if tc.want > slog.LevelDebug {
				assert.False(t, logger.Enabled(ctx, tc.want-1))
			}
		})
	}
}

func TestSetup_InstallsDefault(t *testing.T) {
	logger := Setup(config.ServerConfig{Port: 8000, LogLevel: "info"})
	assert.Same(t, logger, slog.Default())
}
