package shortener

import "errors"

// Sentinel errors surfaced by stores and the descriptor codec.
var (
	// ErrNotFound indicates a short code with no URL record.
	ErrNotFound = errors.New("short code not found")

	// ErrCodeTaken indicates the short code is already assigned.
	ErrCodeTaken = errors.New("short code already exists")

	// ErrJobNotFound indicates no job row matches the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotClaimable indicates a claim or finalize hit a job that is not in
	// the expected prior status (already terminal, or claimed by another
	// worker). Callers treat it as a no-op, never as a state change.
	ErrNotClaimable = errors.New("job not in expected status")

	// ErrMalformedDescriptor indicates a queue entry missing required fields.
	ErrMalformedDescriptor = errors.New("malformed task descriptor")
)
