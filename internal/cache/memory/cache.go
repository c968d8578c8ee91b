// Package memory provides a lookup cache for local development and tests.
package memory

import (
	"context"
	"sync"
)

// Cache stores short_code -> original_url in a map. No eviction: in-process
// use only.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// New constructs a Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get returns the cached URL for a short code.
func (c *Cache) Get(_ context.Context, shortCode string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.entries[shortCode]
	return val, ok, nil
}

// Set stores the mapping.
func (c *Cache) Set(_ context.Context, shortCode, originalURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[shortCode] = originalURL
	return nil
}
