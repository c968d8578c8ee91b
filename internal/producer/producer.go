// Package producer creates URL records and fans enrichment jobs out onto the
// broker.
package producer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/metrics"
	"github.com/shortloop/shortloop/internal/shortener"
)

// TopicAnalytics receives url_created / url_clicked events.
const TopicAnalytics = "analytics"

// Producer is invoked exactly once per URL creation.
type Producer struct {
	urls      shortener.URLStore
	jobs      shortener.JobStore
	broker    shortener.Broker
	cache     shortener.Cache
	publisher shortener.Publisher
	idGen     shortener.IDGenerator
	clock     shortener.Clock
	jobTypes  []shortener.JobType
	logger    *zap.Logger
}

// New constructs a Producer enqueueing one job per type in jobTypes.
func New(
	urls shortener.URLStore,
	jobs shortener.JobStore,
	broker shortener.Broker,
	cache shortener.Cache,
	publisher shortener.Publisher,
	idGen shortener.IDGenerator,
	clock shortener.Clock,
	jobTypes []shortener.JobType,
	logger *zap.Logger,
) *Producer {
	if len(jobTypes) == 0 {
		jobTypes = shortener.AllJobTypes()
	}
	return &Producer{
		urls:      urls,
		jobs:      jobs,
		broker:    broker,
		cache:     cache,
		publisher: publisher,
		idGen:     idGen,
		clock:     clock,
		jobTypes:  jobTypes,
		logger:    logger,
	}
}

// CreateShortURL persists the URL record and its job records on the same
// synchronous path, then pushes one descriptor per job. A client that can
// read the URL record is guaranteed every job record already exists.
//
// A descriptor push failure after the job rows are persisted leaves those
// jobs pending; the recovery sweep republishes them.
func (p *Producer) CreateShortURL(ctx context.Context, originalURL, customCode string) (shortener.URLRecord, error) {
	code := customCode
	if code == "" {
		code = shortener.GenerateCode(originalURL)
	}
	now := p.clock.Now()
	rec := shortener.URLRecord{
		ShortCode:   code,
		OriginalURL: originalURL,
		CreatedAt:   now,
	}
	if err := p.urls.Create(ctx, rec); err != nil {
		return shortener.URLRecord{}, fmt.Errorf("create url record: %w", err)
	}

	jobs := make([]shortener.Job, 0, len(p.jobTypes))
	for _, jobType := range p.jobTypes {
		id, err := p.idGen.NewID()
		if err != nil {
			return shortener.URLRecord{}, fmt.Errorf("generate job id: %w", err)
		}
		jobs = append(jobs, shortener.Job{
			ID:        id,
			ShortCode: code,
			Type:      jobType,
			Status:    shortener.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := p.jobs.CreateJobs(ctx, jobs); err != nil {
		return shortener.URLRecord{}, fmt.Errorf("create job records: %w", err)
	}

	for _, job := range jobs {
		if err := p.pushDescriptor(ctx, job, originalURL); err != nil {
			// The job row is already durable; the sweep will republish it.
			p.logger.Warn("descriptor push failed, job left pending for sweep",
				zap.String("job_id", job.ID),
				zap.String("job_type", string(job.Type)),
				zap.Error(err),
			)
		}
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, code, originalURL); err != nil {
			p.logger.Warn("eager cache fill failed", zap.String("short_code", code), zap.Error(err))
		}
	}

	p.publishEvent(ctx, map[string]any{
		"event":      "url_created",
		"short_code": code,
	})
	metrics.URLCreated()
	p.logger.Info("short url created",
		zap.String("short_code", code),
		zap.Int("jobs_enqueued", len(jobs)),
	)
	return rec, nil
}

func (p *Producer) pushDescriptor(ctx context.Context, job shortener.Job, originalURL string) error {
	payload, err := shortener.NewDescriptor(job, originalURL, p.clock.Now()).Encode()
	if err != nil {
		return err
	}
	if err := p.broker.Push(ctx, payload); err != nil {
		return fmt.Errorf("broker push: %w", err)
	}
	return nil
}

func (p *Producer) publishEvent(ctx context.Context, payload map[string]any) {
	if p.publisher == nil {
		return
	}
	if _, err := p.publisher.Publish(ctx, TopicAnalytics, payload); err != nil {
		p.logger.Warn("analytics publish failed", zap.Error(err))
	}
}
