// Package memory provides a broker implementation for local development and
// tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Broker is a bounded in-memory FIFO with context-aware operations. Receives
// are channel-backed, so two concurrent poppers never observe the same
// payload.
type Broker struct {
	ch      chan []byte
	closeMu sync.Mutex
	closed  bool
}

// New constructs a broker with the provided capacity.
func New(capacity int) *Broker {
	return &Broker{
		ch: make(chan []byte, capacity),
	}
}

// Push appends a payload or returns if the context ends.
func (b *Broker) Push(ctx context.Context, payload []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("push canceled: %w", ctx.Err())
	case b.ch <- payload:
		return nil
	}
}

// Pop waits up to the given duration for the next payload. The boolean is
// false when the wait elapsed with nothing delivered.
func (b *Broker) Pop(ctx context.Context, wait time.Duration) ([]byte, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("pop canceled: %w", ctx.Err())
	case <-timer.C:
		return nil, false, nil
	case payload, ok := <-b.ch:
		if !ok {
			return nil, false, errors.New("broker closed")
		}
		return payload, true, nil
	}
}

// Length reports the current queue depth.
func (b *Broker) Length(_ context.Context) (int64, error) {
	return int64(len(b.ch)), nil
}

// Close closes the underlying channel for shutdown.
func (b *Broker) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return
	}
	close(b.ch)
	b.closed = true
}
