package testutil

import (
	"encoding/json"
	"sync"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/server/common"
)

// FakeConn is a common.Conn that records what is sent to it.
type FakeConn struct {
	id         string
	remoteAddr string

	mu          sync.Mutex
	sent        []events.Event
	closed      bool
	closeCode   int
	closeReason string
	done        chan struct{}
	sendErr     error
	notify      chan struct{}
}

// NewFakeConn creates a fake connection.
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{
		id:         id,
		remoteAddr: "127.0.0.1:50000",
		done:       make(chan struct{}),
		notify:     make(chan struct{}, 1),
	}
}

func (c *FakeConn) ID() string         { return c.id }
func (c *FakeConn) RemoteAddr() string { return c.remoteAddr }

// Send records event. It fails once the connection is closed.
func (c *FakeConn) Send(event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return common.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, event)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the connection closed.
func (c *FakeConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
}

func (c *FakeConn) Done() <-chan struct{} { return c.done }

// SetSendError makes Send fail with err.
func (c *FakeConn) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Closed returns whether Close was called and with which code.
func (c *FakeConn) Closed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

// Sent returns every recorded event.
func (c *FakeConn) Sent() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.sent...)
}

// Types returns the types of the recorded events in order.
func (c *FakeConn) Types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, len(c.sent))
	for i, e := range c.sent {
		out[i] = e.Type()
	}
	return out
}

// OfType returns the recorded events of type t.
func (c *FakeConn) OfType(t events.Type) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.sent {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event of type t decoded into a map, or nil.
func (c *FakeConn) Last(t events.Type) map[string]any {
	evs := c.OfType(t)
	if len(evs) == 0 {
		return nil
	}
	return Decode(evs[len(evs)-1])
}

// Reset forgets recorded events.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// Decode returns the wire form of event as a map.
func Decode(event events.Event) map[string]any {
	data, err := event.ToJSON()
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

var _ common.Conn = (*FakeConn)(nil)
