// Package worker implements the enrichment job execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/metrics"
	"github.com/shortloop/shortloop/internal/shortener"
)

// TopicJobs receives job lifecycle events.
const TopicJobs = "jobs"

// Config controls Worker behavior.
type Config struct {
	// PopWait bounds each broker wait so the loop can observe shutdown.
	PopWait time.Duration
	// MaxAttempts is the retry budget per job.
	MaxAttempts int
	// HandlerTimeout bounds one handler invocation.
	HandlerTimeout time.Duration
	// ErrorBackoff is the pause after a broker or store error.
	ErrorBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PopWait <= 0 {
		c.PopWait = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	return c
}

// Worker consumes task descriptors and executes the matching handler.
// Delivery is at-least-once: the claim and finalize transitions are
// conditional updates, so a duplicate descriptor for an already-finalized
// job is rejected by the store and dropped here.
type Worker struct {
	broker    shortener.Broker
	jobs      shortener.JobStore
	registry  shortener.HandlerRegistry
	publisher shortener.Publisher
	clock     shortener.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	broker shortener.Broker,
	jobs shortener.JobStore,
	registry shortener.HandlerRegistry,
	publisher shortener.Publisher,
	clock shortener.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		broker:    broker,
		jobs:      jobs,
		registry:  registry,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Run blocks, consuming descriptors until the context finishes. Broker and
// store errors back the loop off instead of crash-looping.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, ok, err := w.broker.Pop(ctx, w.cfg.PopWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("broker pop failed", zap.Error(err))
			w.sleep(ctx, w.cfg.ErrorBackoff)
			continue
		}
		if !ok {
			continue
		}
		w.process(ctx, payload)
	}
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	desc, err := shortener.DecodeDescriptor(payload)
	if err != nil {
		// The descriptor cannot be trusted to identify a valid job, so no
		// job record is mutated.
		w.logger.Error("dropping malformed descriptor",
			zap.ByteString("payload", payload),
			zap.Error(err),
		)
		metrics.JobProcessed("unknown", "malformed")
		return
	}

	job, err := w.jobs.Claim(ctx, desc.JobID)
	if err != nil {
		switch {
		case errors.Is(err, shortener.ErrNotClaimable), errors.Is(err, shortener.ErrJobNotFound):
			// Terminal job or a concurrent claim; duplicate delivery is a
			// no-op, never a state change.
			w.logger.Debug("descriptor for unclaimable job dropped",
				zap.String("job_id", desc.JobID),
				zap.Error(err),
			)
		default:
			w.logger.Error("job claim failed", zap.String("job_id", desc.JobID), zap.Error(err))
			w.sleep(ctx, w.cfg.ErrorBackoff)
		}
		return
	}

	metrics.WorkerBusy(true)
	defer metrics.WorkerBusy(false)

	started := w.clock.Now()
	result, handlerErr := w.invoke(ctx, desc)
	metrics.ObserveJobDuration(string(desc.Type), w.clock.Now().Sub(started))

	if handlerErr == nil {
		w.finalizeSuccess(ctx, desc, result)
		return
	}
	if ctx.Err() != nil {
		// Shutdown mid-processing: leave the job running for the staleness
		// sweep instead of consuming an attempt.
		w.logger.Warn("shutdown during handler, job left for recovery sweep",
			zap.String("job_id", job.ID))
		return
	}
	w.finalizeFailure(ctx, desc, handlerErr)
}

func (w *Worker) invoke(ctx context.Context, desc shortener.TaskDescriptor) ([]byte, error) {
	handler, ok := w.registry.Resolve(desc.Type)
	if !ok {
		return nil, errors.New("no handler registered for job type " + string(desc.Type))
	}
	handlerCtx, cancel := context.WithTimeout(ctx, w.cfg.HandlerTimeout)
	defer cancel()
	return handler.Handle(handlerCtx, desc.ShortCode, desc.OriginalURL)
}

func (w *Worker) finalizeSuccess(ctx context.Context, desc shortener.TaskDescriptor, result []byte) {
	if err := w.jobs.Complete(ctx, desc.JobID, result); err != nil {
		if errors.Is(err, shortener.ErrNotClaimable) {
			w.logger.Warn("job finalized elsewhere, result discarded", zap.String("job_id", desc.JobID))
			return
		}
		// The store write failed after the work was done; the job stays
		// running and the sweep will re-run the idempotent handler.
		w.logger.Error("complete update failed", zap.String("job_id", desc.JobID), zap.Error(err))
		return
	}
	metrics.JobProcessed(string(desc.Type), "completed")
	w.publishEvent(ctx, desc, "completed", "")
	w.logger.Info("job completed",
		zap.String("job_id", desc.JobID),
		zap.String("job_type", string(desc.Type)),
		zap.String("short_code", desc.ShortCode),
	)
}

func (w *Worker) finalizeFailure(ctx context.Context, desc shortener.TaskDescriptor, handlerErr error) {
	job, err := w.jobs.Fail(ctx, desc.JobID, handlerErr.Error(), w.cfg.MaxAttempts)
	if err != nil {
		if errors.Is(err, shortener.ErrNotClaimable) {
			w.logger.Warn("job finalized elsewhere, failure discarded", zap.String("job_id", desc.JobID))
			return
		}
		w.logger.Error("fail update failed", zap.String("job_id", desc.JobID), zap.Error(err))
		return
	}

	if job.Status == shortener.JobStatusFailed {
		metrics.JobProcessed(string(desc.Type), "failed")
		w.publishEvent(ctx, desc, "failed", handlerErr.Error())
		w.logger.Error("job failed permanently",
			zap.String("job_id", desc.JobID),
			zap.String("job_type", string(desc.Type)),
			zap.Int("attempts", job.AttemptCount),
			zap.Error(handlerErr),
		)
		return
	}

	// Attempts remain: the job is pending again, push a fresh descriptor.
	metrics.JobProcessed(string(desc.Type), "retried")
	payload, encErr := shortener.NewDescriptor(job, desc.OriginalURL, w.clock.Now()).Encode()
	if encErr == nil {
		if pushErr := w.broker.Push(ctx, payload); pushErr != nil {
			encErr = pushErr
		}
	}
	if encErr != nil {
		// Pending without a descriptor; the sweep republishes it.
		w.logger.Warn("retry re-enqueue failed, job left pending for sweep",
			zap.String("job_id", desc.JobID), zap.Error(encErr))
	}
	w.logger.Warn("job attempt failed, re-enqueued",
		zap.String("job_id", desc.JobID),
		zap.String("job_type", string(desc.Type)),
		zap.Int("attempts", job.AttemptCount),
		zap.Error(handlerErr),
	)
}

func (w *Worker) publishEvent(ctx context.Context, desc shortener.TaskDescriptor, status, errText string) {
	if w.publisher == nil {
		return
	}
	payload := map[string]any{
		"event":      "job_" + status,
		"job_id":     desc.JobID,
		"job_type":   string(desc.Type),
		"short_code": desc.ShortCode,
	}
	if errText != "" {
		payload["error"] = errText
	}
	if _, err := w.publisher.Publish(ctx, TopicJobs, payload); err != nil {
		w.logger.Warn("job event publish failed", zap.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
