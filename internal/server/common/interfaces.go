package common

import (
	"github.com/brianly1003/ideremote/internal/domain/events"
)

// Conn is one client connection as seen by the protocol layer.
type Conn interface {
	// ID returns the server-assigned connection id.
	ID() string

	// RemoteAddr returns the client address.
	RemoteAddr() string

	// Send queues an event. Messages to one connection are written in the
	// order they were queued. It fails once the connection is closed.
	Send(event events.Event) error

	// Close closes the connection with a close code and reason. It is safe to
	// call more than once.
	Close(code int, reason string)

	// Done returns a channel that's closed when the connection is closed.
	Done() <-chan struct{}
}

// ConnectionHandler receives connection lifecycle callbacks from the
// transport. OnMessage is called from the connection's read loop, one
// message at a time.
type ConnectionHandler interface {
	OnConnect(c Conn)
	OnMessage(c Conn, data []byte)
	OnDisconnect(c Conn)
}

// TokenValidator checks the pairing token presented at handshake.
type TokenValidator interface {
	IsTokenValid(token string) bool
}
