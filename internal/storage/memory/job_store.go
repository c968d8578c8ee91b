package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/shortloop/shortloop/internal/shortener"
)

// JobStore holds job records in memory with the same transition semantics as
// the Postgres store: every status change is conditional on the expected
// prior status.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]shortener.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]shortener.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock for tests.
func (s *JobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateJobs inserts all jobs atomically under the store lock.
func (s *JobStore) CreateJobs(_ context.Context, jobs []shortener.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if _, exists := s.jobs[job.ID]; exists {
			return shortener.ErrCodeTaken
		}
	}
	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
	return nil
}

// Claim transitions pending -> running.
func (s *JobStore) Claim(_ context.Context, jobID string) (shortener.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return shortener.Job{}, shortener.ErrJobNotFound
	}
	if job.Status != shortener.JobStatusPending {
		return shortener.Job{}, shortener.ErrNotClaimable
	}
	job.Status = shortener.JobStatusRunning
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return job, nil
}

// Complete transitions running -> completed, counts the successful attempt
// and stores the result.
func (s *JobStore) Complete(_ context.Context, jobID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return shortener.ErrJobNotFound
	}
	if job.Status != shortener.JobStatusRunning {
		return shortener.ErrNotClaimable
	}
	job.Status = shortener.JobStatusCompleted
	job.AttemptCount++
	job.Result = result
	job.ErrorText = ""
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

// Fail increments the attempt count on a running job and either returns it
// to pending or finalizes it as failed.
func (s *JobStore) Fail(_ context.Context, jobID string, errText string, maxAttempts int) (shortener.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return shortener.Job{}, shortener.ErrJobNotFound
	}
	if job.Status != shortener.JobStatusRunning {
		return shortener.Job{}, shortener.ErrNotClaimable
	}
	job.AttemptCount++
	if job.AttemptCount >= maxAttempts {
		job.Status = shortener.JobStatusFailed
		job.ErrorText = errText
	} else {
		job.Status = shortener.JobStatusPending
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return job, nil
}

// ListByShortCode returns every job for a short code, oldest first.
func (s *JobStore) ListByShortCode(_ context.Context, shortCode string) ([]shortener.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []shortener.Job
	for _, job := range s.jobs {
		if job.ShortCode == shortCode {
			out = append(out, job)
		}
	}
	sortJobs(out)
	return out, nil
}

// ReleaseStale resets running jobs untouched since cutoff back to pending.
func (s *JobStore) ReleaseStale(_ context.Context, cutoff time.Time) ([]shortener.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released []shortener.Job
	for id, job := range s.jobs {
		if job.Status == shortener.JobStatusRunning && job.UpdatedAt.Before(cutoff) {
			job.Status = shortener.JobStatusPending
			job.UpdatedAt = s.now()
			s.jobs[id] = job
			released = append(released, job)
		}
	}
	sortJobs(released)
	return released, nil
}

// PendingOlderThan returns pending jobs untouched since cutoff.
func (s *JobStore) PendingOlderThan(_ context.Context, cutoff time.Time) ([]shortener.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []shortener.Job
	for _, job := range s.jobs {
		if job.Status == shortener.JobStatusPending && job.UpdatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	sortJobs(out)
	return out, nil
}

// Touch refreshes updated_at on a pending job.
func (s *JobStore) Touch(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return shortener.ErrJobNotFound
	}
	if job.Status != shortener.JobStatusPending {
		return shortener.ErrNotClaimable
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

// Job ids are UUID7, so sorting by id yields creation order.
func sortJobs(jobs []shortener.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
}
