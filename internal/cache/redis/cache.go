// Package redis implements the short code lookup cache on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "url:"

// Cache mirrors short_code -> original_url. Entries never need invalidation
// (mappings are immutable once created); the TTL only bounds memory.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Cache with the given entry lifetime.
func New(client *redis.Client, ttl time.Duration) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Get returns the cached URL for a short code, reporting a miss via the
// boolean.
func (c *Cache) Get(ctx context.Context, shortCode string) (string, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+shortCode).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get %s: %w", shortCode, err)
	}
	return val, true, nil
}

// Set stores the mapping with the configured TTL.
func (c *Cache) Set(ctx context.Context, shortCode, originalURL string) error {
	if err := c.client.Set(ctx, keyPrefix+shortCode, originalURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", shortCode, err)
	}
	return nil
}
