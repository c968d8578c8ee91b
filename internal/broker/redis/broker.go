// Package redis implements the job broker on a Redis list.
//
// The wire protocol is RPUSH to enqueue, BLPOP with a bounded timeout to
// consume, and LLEN for the externally read queue-depth signal. BLPOP is an
// atomic remove-and-return, so workers racing on the same list never receive
// the same entry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Broker is a Redis-list-backed FIFO shared by all producer and worker
// replicas.
type Broker struct {
	client *redis.Client
	queue  string
}

// New constructs a Broker on the given list key.
func New(client *redis.Client, queue string) (*Broker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if queue == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	return &Broker{client: client, queue: queue}, nil
}

// Push appends a payload to the tail of the list.
func (b *Broker) Push(ctx context.Context, payload []byte) error {
	if err := b.client.RPush(ctx, b.queue, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", b.queue, err)
	}
	return nil
}

// Pop blocks up to wait for the next payload from the head of the list.
func (b *Broker) Pop(ctx context.Context, wait time.Duration) ([]byte, bool, error) {
	vals, err := b.client.BLPop(ctx, wait, b.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blpop %s: %w", b.queue, err)
	}
	// BLPOP returns [key, value].
	if len(vals) != 2 {
		return nil, false, fmt.Errorf("blpop %s: unexpected reply length %d", b.queue, len(vals))
	}
	return []byte(vals[1]), true, nil
}

// Length reports the current list length.
func (b *Broker) Length(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, b.queue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", b.queue, err)
	}
	return n, nil
}

// Ping verifies the Redis connection for readiness probes.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
