// Package jobs implements job submission and lookup, and the per-type
// handlers the worker dispatches claimed jobs to.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reviewreplai/reviewrepl/internal/cache"
	"github.com/reviewreplai/reviewrepl/internal/metrics"
	"github.com/reviewreplai/reviewrepl/internal/store"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// terminalRecordTTL bounds how long a finished job is served from cache.
const terminalRecordTTL = 10 * time.Minute

// Notifier announces new pending jobs to idle workers.
type Notifier interface {
	PublishJobCreated(ctx context.Context, jobID uuid.UUID) error
}

// SubmitRequest is the body of a job submission.
type SubmitRequest struct {
	JobType string          `json:"job_type"`
	Payload json.RawMessage `json:"payload"`
}

// Service accepts job submissions and answers job queries.
type Service struct {
	store    store.Store
	cache    cache.Cache
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates a Service. cache and notifier may be nil.
func NewService(st store.Store, c cache.Cache, n Notifier, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.Discard()
	}
	return &Service{
		store:    st,
		cache:    c,
		notifier: n,
		metrics:  m,
		now:      time.Now,
	}
}

// Submit validates the request and inserts a pending job owned by userID.
// It returns as soon as the row exists; processing happens in a worker.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, req SubmitRequest) (*models.Job, error) {
	jobType, ok := models.ParseJobType(req.JobType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobType, req.JobType)
	}
	payload, err := normalizePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      jobType,
		Payload:   payload,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.metrics.JobsSubmitted.WithLabelValues(string(jobType)).Inc()

	if s.notifier != nil {
		if err := s.notifier.PublishJobCreated(ctx, job.ID); err != nil {
			slog.Warn("job created notification failed", "job_id", job.ID, "error", err)
		}
	}

	slog.Info("job submitted", "job_id", job.ID, "job_type", jobType, "user_id", userID)
	return job, nil
}

// Get returns the job if it exists and belongs to userID. Finished jobs
// never change, so they are served from cache once seen.
func (s *Service) Get(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	key := cache.JobRecordKey(userID, jobID)
	if s.cache != nil {
		if job, ok := s.cachedJob(ctx, key); ok {
			return job, nil
		}
	}

	job, err := s.store.GetJob(ctx, jobID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if s.cache != nil && job.Status.Terminal() {
		if data, err := json.Marshal(job); err == nil {
			if err := s.cache.Set(ctx, key, data, terminalRecordTTL); err != nil {
				slog.Debug("caching job record failed", "job_id", job.ID, "error", err)
			}
		}
	}
	return job, nil
}

func (s *Service) cachedJob(ctx context.Context, key string) (*models.Job, bool) {
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("job record cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false
	}
	return &job, true
}

// List returns one page of the caller's jobs, newest first, and the total
// number of matching jobs.
func (s *Service) List(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	jobs, total, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return jobs, total, nil
}

// normalizePayload accepts an absent or null payload as an empty object
// and otherwise requires a JSON object.
func normalizePayload(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
