package api

import (
	"context"
	"net/http"

	"github.com/castellan/forge-api/internal/api/shared"
)

// Diagnoser reports transcoder health for the liveness endpoint.
type Diagnoser interface {
	Diag(ctx context.Context) map[string]any
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	transcoder Diagnoser
}

// NewHealthHandler creates a HealthHandler. transcoder may be nil when the
// process runs without video support.
func NewHealthHandler(transcoder Diagnoser) *HealthHandler {
	return &HealthHandler{transcoder: transcoder}
}

// Health answers liveness plus transcoder diagnostics, so operators can see
// a broken ffmpeg install without submitting a job.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok":      true,
		"service": "forge-api",
	}
	if h.transcoder != nil {
		body["ffmpeg"] = h.transcoder.Diag(r.Context())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, body)
}
