package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/castellan/forge-api/internal/api/shared"
	"github.com/castellan/forge-api/internal/domain"
	"github.com/castellan/forge-api/internal/service"
	"github.com/castellan/forge-api/internal/store"
)

// CreatedResponse acknowledges an accepted job.
type CreatedResponse struct {
	OK        bool   `json:"ok"`
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// StatusResponse is the full job record as exposed to clients.
type StatusResponse struct {
	OK       bool   `json:"ok"`
	JobID    string `json:"job_id"`
	Kind     string `json:"kind,omitempty"`
	Status   string `json:"status"`
	Stage    string `json:"stage"`
	Progress int    `json:"progress,omitempty"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JobHandler serves the producer and status routes for all job kinds.
type JobHandler struct {
	jobs   *service.JobService
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(jobs *service.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// CreateTextToImage handles POST /ai/generate/text.
func (h *JobHandler) CreateTextToImage(w http.ResponseWriter, r *http.Request) {
	var payload domain.TextToImagePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	job, err := h.jobs.CreateTextToImage(r.Context(), payload)
	h.respondCreated(w, r, job, err, "/ai/status")
}

// CreateImageToImage handles POST /ai/generate/image.
func (h *JobHandler) CreateImageToImage(w http.ResponseWriter, r *http.Request) {
	var payload domain.ImageToImagePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	job, err := h.jobs.CreateImageToImage(r.Context(), payload)
	h.respondCreated(w, r, job, err, "/ai/status")
}

// CreateAvatarBatch handles POST /ai/generate/batch.
func (h *JobHandler) CreateAvatarBatch(w http.ResponseWriter, r *http.Request) {
	var payload domain.AvatarBatchPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	job, err := h.jobs.CreateAvatarBatch(r.Context(), payload)
	h.respondCreated(w, r, job, err, "/ai/status")
}

// CreateVideoFilter handles POST /media/filter/video.
func (h *JobHandler) CreateVideoFilter(w http.ResponseWriter, r *http.Request) {
	var payload domain.VideoFilterPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	job, err := h.jobs.CreateVideoFilter(r.Context(), payload)
	h.respondCreated(w, r, job, err, "/media/filter/status")
}

// AIStatus handles GET /ai/status.
func (h *JobHandler) AIStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r)
}

// VideoStatus handles GET /media/filter/status.
func (h *JobHandler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r)
}

func (h *JobHandler) respondCreated(w http.ResponseWriter, r *http.Request, job *domain.Job, err error, statusPath string) {
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrQueueFull):
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Queue is full, try again later")
		default:
			h.logger.Error("job creation failed", "error", err)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to create job")
		}
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreatedResponse{
		OK:        true,
		JobID:     job.ID,
		StatusURL: fmt.Sprintf("%s?job_id=%s", statusPath, job.ID),
	})
}

// status answers both status routes. A missing or expired job is reported
// as a benign not-found shape with HTTP 200, since polling an expired id is
// an expected client behavior, not a fault.
func (h *JobHandler) status(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{
				OK:     false,
				JobID:  jobID,
				Status: string(domain.StatusError),
				Stage:  "error",
				Error:  "Job not found",
			})
			return
		}
		h.logger.Error("job status lookup failed", "job_id", jobID, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to load job")
		return
	}

	resp := StatusResponse{
		OK:       true,
		JobID:    job.ID,
		Kind:     string(job.Kind),
		Status:   string(job.Status),
		Stage:    defaultStage(job),
		Progress: job.Progress,
		Error:    job.Error,
	}
	if len(job.Result) > 0 {
		resp.Result = job.Result
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// defaultStage derives a stage label for records that never had one set.
func defaultStage(job *domain.Job) string {
	if job.Stage != "" {
		return job.Stage
	}
	switch job.Status {
	case domain.StatusPending:
		return "queued"
	case domain.StatusRunning:
		return "running"
	case domain.StatusDone:
		return "done"
	default:
		return "error"
	}
}
