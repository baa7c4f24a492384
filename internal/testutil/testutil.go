// Package testutil provides fakes for the host, the transport and the
// broadcast hub, plus polling helpers shared by ideremote tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
)

// MockBroadcaster is a ports.Broadcaster that records published messages
// instead of delivering them. Subscribers are tracked by id only.
type MockBroadcaster struct {
	mu        sync.Mutex
	published []events.Event
	subs      map[string]ports.Subscriber
	order     []string
}

// NewMockBroadcaster creates an empty broadcaster.
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{subs: make(map[string]ports.Subscriber)}
}

// Publish records e.
func (m *MockBroadcaster) Publish(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, e)
}

// Subscribe registers sub, replacing any subscriber with the same id.
func (m *MockBroadcaster) Subscribe(sub ports.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID()]; !ok {
		m.order = append(m.order, sub.ID())
	}
	m.subs[sub.ID()] = sub
}

func (m *MockBroadcaster) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return
	}
	delete(m.subs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *MockBroadcaster) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// SubscriberIDs returns the registered ids in subscription order.
func (m *MockBroadcaster) SubscriberIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Published returns every recorded message.
func (m *MockBroadcaster) Published() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.published...)
}

// PublishedOfType returns the recorded messages of type t in order.
func (m *MockBroadcaster) PublishedOfType(t events.Type) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, e := range m.published {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded messages but keeps subscribers.
func (m *MockBroadcaster) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

var _ ports.Broadcaster = (*MockBroadcaster)(nil)

// Eventually polls cond every 10ms until it returns true, failing the test
// after timeout.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s: condition not met within %v", msg, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Never fails the test if cond becomes true at any poll within d.
func Never(t testing.TB, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf("%s", msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
