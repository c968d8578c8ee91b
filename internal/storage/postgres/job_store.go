package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shortloop/shortloop/internal/shortener"
)

const jobColumns = "job_id, short_code, job_type, status, attempt_count, result, error, created_at, updated_at"

// JobStore persists enrichment job records in Postgres. Status transitions
// are conditional UPDATEs on the expected prior status, so a duplicate or
// late delivery cannot corrupt a job finalized by another worker.
type JobStore struct {
	db querier
}

// NewJobStore constructs a JobStore over the given pool.
func NewJobStore(db querier) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &JobStore{db: db}, nil
}

// CreateJobs inserts all jobs in one multi-row INSERT, so a client that can
// read the URL record sees every job record too.
func (s *JobStore) CreateJobs(ctx context.Context, jobs []shortener.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("INSERT INTO jobs (job_id, short_code, job_type, status, attempt_count, created_at, updated_at) VALUES ")
	for i, job := range jobs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			job.ID, job.ShortCode, string(job.Type), string(job.Status),
			job.AttemptCount, job.CreatedAt, job.UpdatedAt)
	}
	if _, err := s.db.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert jobs: %w", err)
	}
	return nil
}

// Claim transitions pending -> running and returns the claimed job.
func (s *JobStore) Claim(ctx context.Context, jobID string) (shortener.Job, error) {
	row := s.db.QueryRow(ctx, `
UPDATE jobs
SET status = 'running', updated_at = now()
WHERE job_id = $1 AND status = 'pending'
RETURNING `+jobColumns,
		jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortener.Job{}, shortener.ErrNotClaimable
		}
		return shortener.Job{}, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete transitions running -> completed, counts the successful attempt
// and stores the result. Result overwrite is the only side effect of a
// duplicate execution, which is why handlers are required to be idempotent.
func (s *JobStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `
UPDATE jobs
SET status = 'completed', attempt_count = attempt_count + 1, result = $2, error = '', updated_at = now()
WHERE job_id = $1 AND status = 'running'`,
		jobID, result)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shortener.ErrNotClaimable
	}
	return nil
}

// Fail increments the attempt count and either returns the job to pending or
// finalizes it as failed, in one conditional statement.
func (s *JobStore) Fail(ctx context.Context, jobID string, errText string, maxAttempts int) (shortener.Job, error) {
	row := s.db.QueryRow(ctx, `
UPDATE jobs
SET attempt_count = attempt_count + 1,
    status = CASE WHEN attempt_count + 1 >= $3 THEN 'failed' ELSE 'pending' END,
    error = CASE WHEN attempt_count + 1 >= $3 THEN $2 ELSE error END,
    updated_at = now()
WHERE job_id = $1 AND status = 'running'
RETURNING `+jobColumns,
		jobID, errText, maxAttempts)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortener.Job{}, shortener.ErrNotClaimable
		}
		return shortener.Job{}, fmt.Errorf("fail job: %w", err)
	}
	return job, nil
}

// ListByShortCode returns every job for a short code in creation order.
func (s *JobStore) ListByShortCode(ctx context.Context, shortCode string) ([]shortener.Job, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE short_code = $1
ORDER BY created_at, job_id`,
		shortCode)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ReleaseStale resets running jobs untouched since cutoff back to pending
// and returns them. A worker that died mid-processing never consumed an
// attempt, so attempt_count is left untouched.
func (s *JobStore) ReleaseStale(ctx context.Context, cutoff time.Time) ([]shortener.Job, error) {
	rows, err := s.db.Query(ctx, `
UPDATE jobs
SET status = 'pending', updated_at = now()
WHERE status = 'running' AND updated_at < $1
RETURNING `+jobColumns,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("release stale jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// PendingOlderThan returns pending jobs whose descriptors may never have
// reached the broker.
func (s *JobStore) PendingOlderThan(ctx context.Context, cutoff time.Time) ([]shortener.Job, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status = 'pending' AND updated_at < $1
ORDER BY updated_at`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("list orphaned jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Touch refreshes updated_at on a pending job after a republish.
func (s *JobStore) Touch(ctx context.Context, jobID string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE jobs
SET updated_at = now()
WHERE job_id = $1 AND status = 'pending'`,
		jobID)
	if err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shortener.ErrNotClaimable
	}
	return nil
}

func scanJob(row pgx.Row) (shortener.Job, error) {
	var (
		job    shortener.Job
		result []byte
	)
	err := row.Scan(&job.ID, &job.ShortCode, &job.Type, &job.Status,
		&job.AttemptCount, &result, &job.ErrorText, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return shortener.Job{}, err
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]shortener.Job, error) {
	var jobs []shortener.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
