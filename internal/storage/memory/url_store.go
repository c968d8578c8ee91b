// Package memory provides store implementations for development and testing.
package memory

import (
	"context"
	"sync"

	"github.com/shortloop/shortloop/internal/shortener"
)

// URLStore holds URL records in a map.
type URLStore struct {
	mu   sync.RWMutex
	urls map[string]shortener.URLRecord
}

// NewURLStore constructs a URLStore.
func NewURLStore() *URLStore {
	return &URLStore{urls: make(map[string]shortener.URLRecord)}
}

// Create inserts a record, rejecting an already-assigned code.
func (s *URLStore) Create(_ context.Context, rec shortener.URLRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.urls[rec.ShortCode]; exists {
		return shortener.ErrCodeTaken
	}
	s.urls[rec.ShortCode] = rec
	return nil
}

// Get fetches a record by short code.
func (s *URLStore) Get(_ context.Context, shortCode string) (shortener.URLRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.urls[shortCode]
	if !ok {
		return shortener.URLRecord{}, shortener.ErrNotFound
	}
	return rec, nil
}

// IncrementClicks bumps the counter under the store lock, so concurrent
// increments never lose updates.
func (s *URLStore) IncrementClicks(_ context.Context, shortCode string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.urls[shortCode]
	if !ok {
		return 0, shortener.ErrNotFound
	}
	rec.ClickCount++
	s.urls[shortCode] = rec
	return rec.ClickCount, nil
}
