// Package handler contains the per-job-type enrichment handlers and their
// dispatch registry.
package handler

import (
	"sync"

	"github.com/shortloop/shortloop/internal/shortener"
)

// Registry maps job types to handlers. Adding a job type is a Register
// call; nothing in the worker loop changes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[shortener.JobType]shortener.Handler
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[shortener.JobType]shortener.Handler)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Registry) Register(t shortener.JobType, h shortener.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Resolve returns the handler for a job type.
func (r *Registry) Resolve(t shortener.JobType) (shortener.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered job types.
func (r *Registry) Types() []shortener.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]shortener.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
