package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

const jobColumns = `id, user_id, job_type, payload, status, result, error, attempts,
	locked_by, lease_expires_at, started_at, completed_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j       models.Job
		payload []byte
		result  []byte
	)
	err := row.Scan(&j.ID, &j.UserID, &j.Type, &payload, &j.Status, &result, &j.Error, &j.Attempts,
		&j.LockedBy, &j.LeaseExpiresAt, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = payload
	if result != nil {
		j.Result = result
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	defer rows.Close()
	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, job_type, payload, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.UserID, job.Type, string(job.Payload), job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("job_type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	offset := filter.Normalize()
	query := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

func (s *PostgresStore) ListPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'pending'
		 ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob is a compare-and-swap on status: the UPDATE only matches while
// the row is still pending, so concurrent workers see exactly one winner.
// Lease times use the database clock.
func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, claim Claim) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'processing', locked_by = $2,
		        lease_expires_at = now() + make_interval(secs => $3),
		        started_at = now(), updated_at = now(), attempts = attempts + 1
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+jobColumns,
		id, claim.WorkerID, claim.Lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClaimConflict
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, workerID string, result []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', result = $3, lease_expires_at = NULL,
		        completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'processing' AND locked_by = $2`,
		id, workerID, string(result))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, workerID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $3, lease_expires_at = NULL,
		        completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'processing' AND locked_by = $2`,
		id, workerID, message)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// RecoverExpiredClaims compares leases against the database clock. Both
// statements run in one transaction and so see the same now().
func (s *PostgresStore) RecoverExpiredClaims(ctx context.Context, maxAttempts int, message string) (Recovery, error) {
	var rec Recovery

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return rec, fmt.Errorf("begin recovery: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $2, lease_expires_at = NULL,
		        completed_at = now(), updated_at = now()
		 WHERE status = 'processing' AND lease_expires_at < now() AND attempts >= $1`,
		maxAttempts, message)
	if err != nil {
		return rec, fmt.Errorf("fail abandoned jobs: %w", err)
	}
	rec.Failed = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx,
		`UPDATE jobs SET status = 'pending', locked_by = NULL, lease_expires_at = NULL,
		        started_at = NULL, updated_at = now()
		 WHERE status = 'processing' AND lease_expires_at < now()`)
	if err != nil {
		return rec, fmt.Errorf("requeue expired jobs: %w", err)
	}
	rec.Requeued = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return Recovery{}, fmt.Errorf("commit recovery: %w", err)
	}
	return rec, nil
}
