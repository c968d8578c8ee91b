package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shortloop/shortloop/internal/shortener"
)

func seedJob(t *testing.T, s *JobStore, id string, status shortener.JobStatus) {
	t.Helper()
	require.NoError(t, s.CreateJobs(context.Background(), []shortener.Job{{
		ID:        id,
		ShortCode: "abc123",
		Type:      shortener.JobTypeQRCode,
		Status:    status,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}}))
}

func TestJobStore_ClaimOnlyFromPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	seedJob(t, s, "job-1", shortener.JobStatusPending)

	claimed, err := s.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, shortener.JobStatusRunning, claimed.Status)

	// Second claim for the same descriptor is a rejected no-op.
	_, err = s.Claim(ctx, "job-1")
	require.ErrorIs(t, err, shortener.ErrNotClaimable)

	_, err = s.Claim(ctx, "missing")
	require.ErrorIs(t, err, shortener.ErrJobNotFound)
}

func TestJobStore_TerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	seedJob(t, s, "job-1", shortener.JobStatusPending)

	_, err := s.Claim(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "job-1", json.RawMessage(`{"ok":true}`)))

	// No transition leaves completed.
	_, err = s.Claim(ctx, "job-1")
	require.ErrorIs(t, err, shortener.ErrNotClaimable)
	require.ErrorIs(t, s.Complete(ctx, "job-1", nil), shortener.ErrNotClaimable)
	_, err = s.Fail(ctx, "job-1", "late failure", 3)
	require.ErrorIs(t, err, shortener.ErrNotClaimable)

	jobs, err := s.ListByShortCode(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, shortener.JobStatusCompleted, jobs[0].Status)
	require.JSONEq(t, `{"ok":true}`, string(jobs[0].Result))
}

func TestJobStore_FailExhaustsAttempts(t *testing.T) {
	t.Parallel()

	const maxAttempts = 3
	ctx := context.Background()
	s := NewJobStore()
	seedJob(t, s, "job-1", shortener.JobStatusPending)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.Claim(ctx, "job-1")
		require.NoError(t, err)
		job, err := s.Fail(ctx, "job-1", "boom", maxAttempts)
		require.NoError(t, err)
		require.Equal(t, attempt, job.AttemptCount)
		if attempt < maxAttempts {
			require.Equal(t, shortener.JobStatusPending, job.Status)
		} else {
			require.Equal(t, shortener.JobStatusFailed, job.Status)
			require.Equal(t, "boom", job.ErrorText)
		}
	}

	jobs, err := s.ListByShortCode(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, maxAttempts, jobs[0].AttemptCount)
	require.Equal(t, shortener.JobStatusFailed, jobs[0].Status)
}

func TestJobStore_ReleaseStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	seedJob(t, s, "job-stale", shortener.JobStatusPending)
	seedJob(t, s, "job-fresh", shortener.JobStatusPending)
	_, err := s.Claim(ctx, "job-stale")
	require.NoError(t, err)

	// job-fresh is claimed later and is still inside the staleness window.
	s.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	_, err = s.Claim(ctx, "job-fresh")
	require.NoError(t, err)

	released, err := s.ReleaseStale(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, released, 1)
	require.Equal(t, "job-stale", released[0].ID)
	require.Equal(t, shortener.JobStatusPending, released[0].Status)
	// Staleness recovery does not consume an attempt.
	require.Zero(t, released[0].AttemptCount)
}

func TestJobStore_PendingOlderThanAndTouch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	require.NoError(t, s.CreateJobs(ctx, []shortener.Job{{
		ID:        "job-orphan",
		ShortCode: "abc123",
		Type:      shortener.JobTypeMetadata,
		Status:    shortener.JobStatusPending,
		CreatedAt: base,
		UpdatedAt: base,
	}}))

	orphans, err := s.PendingOlderThan(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	s.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	require.NoError(t, s.Touch(ctx, "job-orphan"))

	orphans, err = s.PendingOlderThan(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, orphans)
}
