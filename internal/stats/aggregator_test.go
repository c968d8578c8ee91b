package stats_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shortloop/shortloop/internal/shortener"
	"github.com/shortloop/shortloop/internal/stats"
	storememory "github.com/shortloop/shortloop/internal/storage/memory"
)

func TestGet_AggregatesURLAndJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	urls := storememory.NewURLStore()
	jobs := storememory.NewJobStore()
	agg := stats.New(urls, jobs)

	now := time.Unix(1700000000, 0).UTC()
	require.NoError(t, urls.Create(ctx, shortener.URLRecord{
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
		CreatedAt:   now,
	}))
	require.NoError(t, jobs.CreateJobs(ctx, []shortener.Job{
		{ID: "j1", ShortCode: "abc123", Type: shortener.JobTypeQRCode, Status: shortener.JobStatusPending, CreatedAt: now, UpdatedAt: now},
		{ID: "j2", ShortCode: "abc123", Type: shortener.JobTypeMetadata, Status: shortener.JobStatusPending, CreatedAt: now, UpdatedAt: now},
	}))

	// Finish j1; fail j2 permanently.
	_, err := jobs.Claim(ctx, "j1")
	require.NoError(t, err)
	require.NoError(t, jobs.Complete(ctx, "j1", json.RawMessage(`{"blob_uri":"memory://abc123/qr.png"}`)))
	_, err = jobs.Claim(ctx, "j2")
	require.NoError(t, err)
	_, err = jobs.Fail(ctx, "j2", "fetch refused", 1)
	require.NoError(t, err)

	for range 5 {
		_, err := urls.IncrementClicks(ctx, "abc123")
		require.NoError(t, err)
	}

	got, err := agg.Get(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", got.ShortCode)
	require.Equal(t, "https://example.com", got.OriginalURL)
	require.EqualValues(t, 5, got.ClickCount)
	require.Len(t, got.Jobs, 2)

	byID := map[string]stats.JobView{}
	for _, j := range got.Jobs {
		byID[j.JobID] = j
	}
	require.Equal(t, "completed", byID["j1"].Status)
	require.JSONEq(t, `{"blob_uri":"memory://abc123/qr.png"}`, string(byID["j1"].Result))
	require.Empty(t, byID["j1"].Error)

	require.Equal(t, "failed", byID["j2"].Status)
	require.Equal(t, "fetch refused", byID["j2"].Error)
	require.Nil(t, byID["j2"].Result)
	require.Equal(t, 1, byID["j2"].AttemptCount)
}

func TestGet_UnknownCode(t *testing.T) {
	t.Parallel()

	agg := stats.New(storememory.NewURLStore(), storememory.NewJobStore())
	_, err := agg.Get(context.Background(), "nope")
	require.ErrorIs(t, err, shortener.ErrNotFound)
}

func TestGet_ZeroJobsIsNotAnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	urls := storememory.NewURLStore()
	require.NoError(t, urls.Create(ctx, shortener.URLRecord{
		ShortCode:   "abc123",
		OriginalURL: "https://example.com",
	}))

	agg := stats.New(urls, storememory.NewJobStore())
	got, err := agg.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got.Jobs)
	require.Empty(t, got.Jobs)
}
