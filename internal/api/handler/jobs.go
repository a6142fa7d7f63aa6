package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/reviewreplai/reviewrepl/internal/api/middleware"
	"github.com/reviewreplai/reviewrepl/internal/api/response"
	"github.com/reviewreplai/reviewrepl/internal/jobs"
	"github.com/reviewreplai/reviewrepl/internal/store"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// MaxBodyBytes caps the size of a job submission body.
const MaxBodyBytes = 1 << 20

const jobTypeMessage = "job_type must be one of ai_generation, review_processing, prompt_analysis, sentiment_analysis"

// JobService defines the interface the job handlers depend on.
type JobService interface {
	Submit(ctx context.Context, userID uuid.UUID, req jobs.SubmitRequest) (*models.Job, error)
	Get(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error)
	List(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// The job is returned in pending state with 202 Accepted.
func NewSubmitJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		var req jobs.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					"Request body must not exceed 1 MiB")
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}

		job, err := svc.Submit(r.Context(), userID, req)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrInvalidJobType):
				response.Error(w, http.StatusBadRequest, "INVALID_JOB_TYPE", jobTypeMessage)
			case errors.Is(err, jobs.ErrInvalidPayload):
				response.Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", "payload must be a JSON object")
			default:
				response.Error(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Failed to create job")
			}
			return
		}

		response.Success(w, http.StatusAccepted, "job", job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Missing, foreign and malformed ids all answer 404.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user")
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}

		job, err := svc.Get(r.Context(), userID, jobID)
		if errors.Is(err, jobs.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Failed to load job")
			return
		}

		response.Success(w, http.StatusOK, "job", job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
// Supports status, job_type, page and limit query parameters.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user")
			return
		}

		q := r.URL.Query()
		filter := store.JobFilter{UserID: userID}

		if s := q.Get("status"); s != "" {
			status, ok := models.ParseJobStatus(s)
			if !ok {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"status must be one of pending, processing, completed, failed")
				return
			}
			filter.Status = status
		}
		if s := q.Get("job_type"); s != "" {
			jt, ok := models.ParseJobType(s)
			if !ok {
				response.Error(w, http.StatusBadRequest, "INVALID_JOB_TYPE", jobTypeMessage)
				return
			}
			filter.Type = jt
		}

		var err error
		if filter.Page, err = positiveInt(q.Get("page")); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer")
			return
		}
		if filter.Limit, err = positiveInt(q.Get("limit")); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		filter.Normalize()

		list, total, err := svc.List(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORE_UNAVAILABLE", "Failed to list jobs")
			return
		}

		response.Collection(w, "jobs", list, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

// positiveInt parses an optional query value; empty means zero (default).
func positiveInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
