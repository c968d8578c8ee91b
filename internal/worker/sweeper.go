package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/shortener"
)

// SweeperConfig controls the recovery sweep cadence and thresholds.
type SweeperConfig struct {
	// Interval between sweep passes.
	Interval time.Duration
	// RunningStaleAfter is how long a running job may go without an update
	// before it is presumed lost to a dead worker.
	RunningStaleAfter time.Duration
	// PendingStaleAfter is how long a pending job may sit before its
	// descriptor is presumed to have never reached the broker.
	PendingStaleAfter time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.RunningStaleAfter <= 0 {
		c.RunningStaleAfter = 5 * time.Minute
	}
	if c.PendingStaleAfter <= 0 {
		c.PendingStaleAfter = 2 * time.Minute
	}
	return c
}

// Sweeper reclaims jobs the pipeline lost track of: running jobs whose
// worker died mid-processing, and pending jobs whose descriptor push failed.
// Every replica may run one; the conditional store updates make concurrent
// sweeps harmless.
type Sweeper struct {
	jobs   shortener.JobStore
	urls   shortener.URLStore
	broker shortener.Broker
	clock  shortener.Clock
	cfg    SweeperConfig
	logger *zap.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(
	jobs shortener.JobStore,
	urls shortener.URLStore,
	broker shortener.Broker,
	clock shortener.Clock,
	cfg SweeperConfig,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		jobs:   jobs,
		urls:   urls,
		broker: broker,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Run sweeps on a ticker until the context finishes.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one recovery pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()

	released, err := s.jobs.ReleaseStale(ctx, now.Add(-s.cfg.RunningStaleAfter))
	if err != nil {
		s.logger.Error("stale running sweep failed", zap.Error(err))
	} else if len(released) > 0 {
		s.logger.Info("reclaimed stale running jobs", zap.Int("count", len(released)))
		s.republish(ctx, released)
	}

	orphans, err := s.jobs.PendingOlderThan(ctx, now.Add(-s.cfg.PendingStaleAfter))
	if err != nil {
		s.logger.Error("orphaned pending sweep failed", zap.Error(err))
		return
	}
	if len(orphans) > 0 {
		s.logger.Info("republishing orphaned pending jobs", zap.Int("count", len(orphans)))
		s.republish(ctx, orphans)
	}
}

func (s *Sweeper) republish(ctx context.Context, jobs []shortener.Job) {
	for _, job := range jobs {
		rec, err := s.urls.Get(ctx, job.ShortCode)
		if err != nil {
			s.logger.Error("url lookup for republish failed",
				zap.String("job_id", job.ID),
				zap.String("short_code", job.ShortCode),
				zap.Error(err),
			)
			continue
		}
		payload, err := shortener.NewDescriptor(job, rec.OriginalURL, s.clock.Now()).Encode()
		if err != nil {
			s.logger.Error("descriptor encode failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.broker.Push(ctx, payload); err != nil {
			// Still pending; the next pass retries.
			s.logger.Warn("republish push failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.jobs.Touch(ctx, job.ID); err != nil {
			s.logger.Debug("touch after republish skipped", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
