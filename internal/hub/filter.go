package hub

import (
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
)

// FilteredSubscriber wraps a subscriber and forwards only the events the
// allow function accepts. Connections use it so broadcasts reach them only
// while they are approved.
type FilteredSubscriber struct {
	inner ports.Subscriber
	allow func(events.Event) bool
}

// NewFilteredSubscriber creates a filtered subscriber. A nil allow forwards
// everything.
func NewFilteredSubscriber(inner ports.Subscriber, allow func(events.Event) bool) *FilteredSubscriber {
	return &FilteredSubscriber{inner: inner, allow: allow}
}

// ID returns the wrapped subscriber's ID.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send forwards the event if it passes the filter. Skipped events are not
// an error.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if f.allow != nil && !f.allow(event) {
		return nil
	}
	return f.inner.Send(event)
}

// Close closes the wrapped subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns the wrapped subscriber's done channel.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}
