package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

// MemoryStore keeps jobs in process memory. It mirrors PostgresStore
// semantics and is used for tests and single-process local runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a MemoryStore whose lease and completion
// times come from now. It plays the role of the database clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*models.Job),
		now:  now,
	}
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	if !job.Type.Valid() {
		return fmt.Errorf("create job: invalid job type %q", job.Type)
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("create job: status must be pending, got %q", job.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.UserID != userID {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]*models.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := filter.Normalize()

	matched := make([]*models.Job, 0)
	for _, j := range s.jobs {
		if j.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		matched = append(matched, j)
	}

	sort.Slice(matched, func(a, b int) bool {
		return newer(matched[a], matched[b])
	})

	total := len(matched)
	if offset >= total {
		return []*models.Job{}, total, nil
	}
	end := offset + filter.Limit
	if end > total {
		end = total
	}

	out := make([]*models.Job, 0, end-offset)
	for _, j := range matched[offset:end] {
		out = append(out, j.Clone())
	}
	return out, total, nil
}

func (s *MemoryStore) ListPendingJobs(_ context.Context, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*models.Job, 0)
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool {
		return newer(pending[b], pending[a])
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]*models.Job, 0, len(pending))
	for _, j := range pending {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ClaimJob(_ context.Context, id uuid.UUID, claim Claim) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || !models.CanTransition(j.Status, models.JobStatusProcessing) {
		return nil, ErrClaimConflict
	}

	now := s.now().UTC()
	lease := now.Add(claim.Lease)
	worker := claim.WorkerID
	j.Status = models.JobStatusProcessing
	j.LockedBy = &worker
	j.LeaseExpiresAt = &lease
	j.StartedAt = &now
	j.UpdatedAt = now
	j.Attempts++
	return j.Clone(), nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, id uuid.UUID, workerID string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.heldBy(id, workerID, models.JobStatusCompleted)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	j.Status = models.JobStatusCompleted
	j.Result = append([]byte(nil), result...)
	j.LeaseExpiresAt = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) FailJob(_ context.Context, id uuid.UUID, workerID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.heldBy(id, workerID, models.JobStatusFailed)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	j.Status = models.JobStatusFailed
	j.Error = &message
	j.LeaseExpiresAt = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) RecoverExpiredClaims(_ context.Context, maxAttempts int, message string) (Recovery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Recovery
	now := s.now().UTC()
	for _, j := range s.jobs {
		if j.Status != models.JobStatusProcessing || j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.Before(now) {
			continue
		}
		if j.Attempts >= maxAttempts {
			msg := message
			completed := now
			j.Status = models.JobStatusFailed
			j.Error = &msg
			j.LeaseExpiresAt = nil
			j.CompletedAt = &completed
			j.UpdatedAt = now
			rec.Failed++
			continue
		}
		j.Status = models.JobStatusPending
		j.LockedBy = nil
		j.LeaseExpiresAt = nil
		j.StartedAt = nil
		j.UpdatedAt = now
		rec.Requeued++
	}
	return rec, nil
}

// heldBy returns the live record if workerID still owns its claim and the
// job may move to the terminal status to.
func (s *MemoryStore) heldBy(id uuid.UUID, workerID string, to models.JobStatus) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok || !models.CanTransition(j.Status, to) || j.LockedBy == nil || *j.LockedBy != workerID {
		return nil, ErrClaimLost
	}
	return j, nil
}

// newer orders by created_at descending with id as tiebreak, matching the
// Postgres ORDER BY clauses.
func newer(a, b *models.Job) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}
