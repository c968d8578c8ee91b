// Package noop discards published events, for deployments without an
// event bus.
package noop

import "context"

// Publisher discards everything.
type Publisher struct{}

// New returns a Publisher.
func New() Publisher { return Publisher{} }

// Publish drops the event.
func (Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
