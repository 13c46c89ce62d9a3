package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"content-agent-service/internal/config"
	"content-agent-service/internal/entity"
	"content-agent-service/internal/metrics"
	"content-agent-service/internal/service"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 20
	maxLimit     = 200
)

// Subscriber wakes status streams when a job changes.
type Subscriber interface {
	Subscribe(ctx context.Context, id uuid.UUID) (<-chan struct{}, func(), error)
}

type Handler struct {
	jobSvc  *service.JobService
	subs    Subscriber
	stream  config.Stream
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewHandler(jobSvc *service.JobService, subs Subscriber, stream config.Stream, m *metrics.Metrics, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{jobSvc: jobSvc, subs: subs, stream: stream, metrics: m, log: log}
}

type createJobResp struct {
	JobID string `json:"jobId"`
}

type listJobsResp struct {
	Jobs []*entity.Job `json:"jobs"`
}

// CreateJob godoc
// @Summary Create a content job
// @Description Stores a queued job with every agent pending and starts the agent chain.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body entity.ContentRequest true "content request (topic or prompt required; unknown fields are kept)"
// @Success 202 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	id, err := h.jobSvc.CreateJob(r.Context(), json.RawMessage(body))
	if err != nil {
		if !errors.Is(err, entity.ErrInvalidRequest) {
			h.log.Error("create job", "error", err)
		}
		writeServiceErr(w, err)
		return
	}

	w.Header().Set("Location", "/jobs/"+id.String())
	writeJSON(w, http.StatusAccepted, createJobResp{JobID: id.String()})
}

// GetJob godoc
// @Summary Get job by id
// @Description Returns the job record. With Accept: text/event-stream or ?stream=1 it streams like /jobs/{id}/events.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param stream query string false "stream updates as Server-Sent Events"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if wantsStream(r) {
		h.streamJob(w, r, id)
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// StreamJob godoc
// @Summary Stream job status
// @Description Server-Sent Events: "job" events carry the record when it changed, keepalive comments otherwise, "done" after a terminal status.
// @Tags jobs
// @Produce text/event-stream
// @Param id path string true "job id (uuid)"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id}/events [get]
func (h *Handler) StreamJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	h.streamJob(w, r, id)
}

// GetJobResult godoc
// @Summary Get job result
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/result [get]
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if j.Status != entity.StatusCompleted {
		writeErr(w, http.StatusConflict, "job not completed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(j.Result)
}

// ListJobs godoc
// @Summary List jobs
// @Description Most recent first.
// @Tags jobs
// @Produce json
// @Param limit query int false "max jobs (default 20, max 200)"
// @Success 200 {object} listJobsResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}

	jobs, err := h.jobSvc.ListJobs(r.Context(), limit)
	if err != nil {
		h.log.Error("list jobs", "error", err)
		writeServiceErr(w, err)
		return
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	writeJSON(w, http.StatusOK, listJobsResp{Jobs: jobs})
}

// DeleteJob godoc
// @Summary Delete job
// @Tags jobs
// @Param id path string true "job id (uuid)"
// @Success 204
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [delete]
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.jobSvc.DeleteJob(r.Context(), id); err != nil {
		writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
