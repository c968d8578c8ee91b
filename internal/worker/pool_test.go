package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/shortener"
)

func TestPool_DistributesWorkWithoutDuplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{PopWait: 10 * time.Millisecond})
	h := &funcHandler{fn: func(int32) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	f.registry.Register(shortener.JobTypeMetadata, h)

	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	second := New(f.broker, f.jobs, f.registry, f.publisher,
		fixedClock{now: now}, Config{PopWait: 10 * time.Millisecond}, zap.NewNop())
	pool := NewPool(f.broker, []*Worker{f.worker, second}, zap.NewNop())

	// Start the pool before seeding so pushes beyond the broker's
	// buffer are drained by the running workers instead of blocking.
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(runCtx)
	}()

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		job := shortener.Job{
			ID:        "job-" + string(rune('a'+i)),
			ShortCode: "abc123",
			Type:      shortener.JobTypeMetadata,
			Status:    shortener.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, f.jobs.CreateJobs(ctx, []shortener.Job{job}))
		payload, err := shortener.NewDescriptor(job, "https://example.com", now).Encode()
		require.NoError(t, err)
		require.NoError(t, f.broker.Push(ctx, payload))
	}

	require.Eventually(t, func() bool {
		all, err := f.jobs.ListByShortCode(ctx, "abc123")
		if err != nil {
			return false
		}
		for _, job := range all {
			if job.Status != shortener.JobStatusCompleted {
				return false
			}
		}
		return len(all) == jobCount
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}

	// Each job was handled exactly once across both workers.
	require.EqualValues(t, jobCount, h.calls.Load())
}
