package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/castellan/forge-api/internal/api/middleware"
)

// NewRouter assembles the HTTP surface. The producer routes sit behind the
// per-IP rate limiter; status and health stay unthrottled so pollers and
// probes are never rejected.
func NewRouter(jobs *JobHandler, health *HealthHandler, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Post("/ai/generate/text", jobs.CreateTextToImage)
		r.Post("/ai/generate/image", jobs.CreateImageToImage)
		r.Post("/ai/generate/batch", jobs.CreateAvatarBatch)
		r.Post("/media/filter/video", jobs.CreateVideoFilter)
	})

	r.Get("/ai/status", jobs.AIStatus)
	r.Get("/media/filter/status", jobs.VideoStatus)
	r.Get("/healthz", health.Health)

	return r
}
