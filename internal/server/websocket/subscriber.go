package websocket

import (
	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/server/common"
)

// ConnSubscriber wraps a connection as a broadcast subscriber.
type ConnSubscriber struct {
	conn common.Conn
}

// NewConnSubscriber creates a subscriber from a connection.
func NewConnSubscriber(conn common.Conn) *ConnSubscriber {
	return &ConnSubscriber{conn: conn}
}

// ID returns the connection id.
func (s *ConnSubscriber) ID() string {
	return s.conn.ID()
}

// Send queues the event on the connection. A full buffer drops the event
// but keeps the subscriber.
func (s *ConnSubscriber) Send(event events.Event) error {
	select {
	case <-s.conn.Done():
		return domain.ErrSubscriberClosed
	default:
	}

	err := s.conn.Send(event)
	if err == common.ErrClosed {
		return domain.ErrSubscriberClosed
	}
	if err == common.ErrBufferFull {
		return nil
	}
	return err
}

// Close is a no-op: the connection's lifetime is owned by the transport.
func (s *ConnSubscriber) Close() error {
	return nil
}

// Done returns a channel that's closed when the connection is closed.
func (s *ConnSubscriber) Done() <-chan struct{} {
	return s.conn.Done()
}

var _ ports.Subscriber = (*ConnSubscriber)(nil)
