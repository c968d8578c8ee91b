package shortener

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskDescriptor is the on-wire record pushed through the broker. It is
// transient: it has no persistence beyond the job record it references.
type TaskDescriptor struct {
	JobID       string    `json:"job_id"`
	Type        JobType   `json:"job_type"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// NewDescriptor builds the descriptor for a job.
func NewDescriptor(job Job, originalURL string, now time.Time) TaskDescriptor {
	return TaskDescriptor{
		JobID:       job.ID,
		Type:        job.Type,
		ShortCode:   job.ShortCode,
		OriginalURL: originalURL,
		EnqueuedAt:  now,
	}
}

// Encode serializes the descriptor for the broker.
func (d TaskDescriptor) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return data, nil
}

// DecodeDescriptor parses a broker payload. Unknown extra fields are
// tolerated for forward compatibility; a payload missing any required field
// is rejected with ErrMalformedDescriptor.
func DecodeDescriptor(payload []byte) (TaskDescriptor, error) {
	var d TaskDescriptor
	if err := json.Unmarshal(payload, &d); err != nil {
		return TaskDescriptor{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	switch {
	case d.JobID == "":
		return TaskDescriptor{}, fmt.Errorf("%w: missing job_id", ErrMalformedDescriptor)
	case d.Type == "":
		return TaskDescriptor{}, fmt.Errorf("%w: missing job_type", ErrMalformedDescriptor)
	case d.ShortCode == "":
		return TaskDescriptor{}, fmt.Errorf("%w: missing short_code", ErrMalformedDescriptor)
	case d.OriginalURL == "":
		return TaskDescriptor{}, fmt.Errorf("%w: missing original_url", ErrMalformedDescriptor)
	case d.EnqueuedAt.IsZero():
		return TaskDescriptor{}, fmt.Errorf("%w: missing enqueued_at", ErrMalformedDescriptor)
	}
	return d, nil
}
