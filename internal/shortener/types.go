// Package shortener defines core types shared across subsystems.
package shortener

import (
	"encoding/json"
	"time"
)

// JobType identifies which enrichment a job performs.
type JobType string

// Enrichment job types produced for every shortened URL.
const (
	JobTypeQRCode     JobType = "qr_code"
	JobTypeScreenshot JobType = "screenshot"
	JobTypeMetadata   JobType = "metadata"
)

// AllJobTypes returns the enrichment types enqueued per created URL.
func AllJobTypes() []JobType {
	return []JobType{JobTypeQRCode, JobTypeScreenshot, JobTypeMetadata}
}

// JobStatus represents the lifecycle state of an enrichment job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// URLRecord is the persisted mapping from a short code to its target.
// ShortCode is immutable once assigned; ClickCount only ever grows.
type URLRecord struct {
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ClickCount  int64     `json:"click_count"`
}

// Job is the persisted record of one enrichment unit of work.
type Job struct {
	ID           string          `json:"job_id"`
	ShortCode    string          `json:"short_code"`
	Type         JobType         `json:"job_type"`
	Status       JobStatus       `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorText    string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
