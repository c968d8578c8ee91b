package shortener

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// URLStore persists short code mappings.
type URLStore interface {
	// Create inserts a new record, returning ErrCodeTaken if the code exists.
	Create(ctx context.Context, rec URLRecord) error
	// Get returns the record for a short code, or ErrNotFound.
	Get(ctx context.Context, shortCode string) (URLRecord, error)
	// IncrementClicks atomically bumps the click counter and returns the new
	// value. Implementations must not read-modify-write.
	IncrementClicks(ctx context.Context, shortCode string) (int64, error)
}

// JobStore persists enrichment job records. All status transitions are
// conditional on the expected prior status so duplicate or late deliveries
// cannot corrupt a finalized job.
type JobStore interface {
	// CreateJobs inserts the given jobs in a single atomic write.
	CreateJobs(ctx context.Context, jobs []Job) error
	// Claim transitions pending -> running and returns the claimed job.
	// Returns ErrNotClaimable if the job is not pending.
	Claim(ctx context.Context, jobID string) (Job, error)
	// Complete transitions running -> completed, counting the successful
	// attempt and storing the result.
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	// Fail increments the attempt count on a running job. If attempts remain
	// (count < maxAttempts) the job returns to pending; otherwise it becomes
	// failed with errText stored. The updated job is returned.
	Fail(ctx context.Context, jobID string, errText string, maxAttempts int) (Job, error)
	// ListByShortCode returns every job for the short code, oldest first.
	ListByShortCode(ctx context.Context, shortCode string) ([]Job, error)
	// ReleaseStale resets running jobs untouched since cutoff back to
	// pending and returns them for re-enqueueing.
	ReleaseStale(ctx context.Context, cutoff time.Time) ([]Job, error)
	// PendingOlderThan returns pending jobs untouched since cutoff, whose
	// descriptors may have been lost before reaching the broker.
	PendingOlderThan(ctx context.Context, cutoff time.Time) ([]Job, error)
	// Touch refreshes a pending job's updated_at after its descriptor has
	// been republished.
	Touch(ctx context.Context, jobID string) error
}

// Broker is the shared FIFO work queue between producer and workers. Pop is
// an atomic remove-and-return: two racing consumers never receive the same
// payload. Length feeds the external autoscaling signal.
type Broker interface {
	Push(ctx context.Context, payload []byte) error
	// Pop waits up to the given duration for the next payload. The second
	// return is false when the wait elapsed with nothing to deliver.
	Pop(ctx context.Context, wait time.Duration) ([]byte, bool, error)
	Length(ctx context.Context) (int64, error)
}

// Cache mirrors short code -> original URL for the redirect hot path.
type Cache interface {
	Get(ctx context.Context, shortCode string) (string, bool, error)
	Set(ctx context.Context, shortCode, originalURL string) error
}

// Handler performs one enrichment type. Handlers must tolerate duplicate
// invocation for the same job: the only externally visible side effect is
// the stored result, which may be overwritten.
type Handler interface {
	Handle(ctx context.Context, shortCode, originalURL string) (json.RawMessage, error)
}

// HandlerRegistry resolves the handler for a job type.
type HandlerRegistry interface {
	Resolve(t JobType) (Handler, bool)
}

// BlobStore writes artifacts (QR and screenshot images) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes analytics and job lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (swappable for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
