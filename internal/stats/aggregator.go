// Package stats assembles the read-side view of a short link and its
// enrichment jobs.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shortloop/shortloop/internal/shortener"
)

// JobView is one enrichment job in a stats response.
type JobView struct {
	JobID        string          `json:"job_id"`
	Type         string          `json:"job_type"`
	Status       string          `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// URLStats is the aggregated view returned by the stats endpoint.
type URLStats struct {
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ClickCount  int64     `json:"click_count"`
	Jobs        []JobView `json:"jobs"`
}

// Aggregator joins the URL record with its job rows.
type Aggregator struct {
	urls shortener.URLStore
	jobs shortener.JobStore
}

// New constructs an Aggregator.
func New(urls shortener.URLStore, jobs shortener.JobStore) *Aggregator {
	return &Aggregator{urls: urls, jobs: jobs}
}

// Get returns the stats for a short code. An unknown code surfaces
// shortener.ErrNotFound; a known code with no job rows is a valid response
// with an empty job list.
func (a *Aggregator) Get(ctx context.Context, shortCode string) (URLStats, error) {
	rec, err := a.urls.Get(ctx, shortCode)
	if err != nil {
		return URLStats{}, err
	}

	jobs, err := a.jobs.ListByShortCode(ctx, shortCode)
	if err != nil {
		return URLStats{}, fmt.Errorf("list jobs for %s: %w", shortCode, err)
	}

	out := URLStats{
		ShortCode:   rec.ShortCode,
		OriginalURL: rec.OriginalURL,
		CreatedAt:   rec.CreatedAt,
		ClickCount:  rec.ClickCount,
		Jobs:        make([]JobView, 0, len(jobs)),
	}
	for _, job := range jobs {
		view := JobView{
			JobID:        job.ID,
			Type:         string(job.Type),
			Status:       string(job.Status),
			AttemptCount: job.AttemptCount,
			CreatedAt:    job.CreatedAt,
			UpdatedAt:    job.UpdatedAt,
		}
		if job.Status == shortener.JobStatusCompleted {
			view.Result = job.Result
		}
		if job.ErrorText != "" {
			view.Error = job.ErrorText
		}
		out.Jobs = append(out.Jobs, view)
	}
	return out, nil
}
