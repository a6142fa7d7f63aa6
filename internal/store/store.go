package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrClaimConflict is returned by ClaimJob when the job is no longer pending.
// Another worker won the claim; callers skip the job.
var ErrClaimConflict = errors.New("job already claimed")

// ErrClaimLost is returned by CompleteJob and FailJob when the caller no
// longer holds the claim, for example after the lease was reaped.
var ErrClaimLost = errors.New("job claim lost")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob returns ErrNotFound when the job does not exist or belongs to
	// another user.
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)

	// ListPendingJobs returns up to limit pending jobs, oldest first.
	ListPendingJobs(ctx context.Context, limit int) ([]*models.Job, error)
	// ClaimJob moves a pending job to processing on behalf of a worker.
	ClaimJob(ctx context.Context, id uuid.UUID, claim Claim) (*models.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID, workerID string, result []byte) error
	FailJob(ctx context.Context, id uuid.UUID, workerID string, message string) error
	// RecoverExpiredClaims releases processing jobs whose lease has ended.
	RecoverExpiredClaims(ctx context.Context, maxAttempts int, message string) (Recovery, error)
}

// Claim describes the worker taking ownership of a job. Lease start and
// expiry are read from the store's clock, never the worker's, so workers
// on different hosts agree on when a claim expires.
type Claim struct {
	WorkerID string
	Lease    time.Duration
}

// Recovery counts the jobs touched by one RecoverExpiredClaims call.
type Recovery struct {
	Requeued int
	Failed   int
}

type JobFilter struct {
	UserID uuid.UUID
	Status models.JobStatus
	Type   models.JobType
	Page   int
	Limit  int
}

// Normalize clamps pagination to the allowed range and returns the offset.
func (f *JobFilter) Normalize() int {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return (f.Page - 1) * f.Limit
}
