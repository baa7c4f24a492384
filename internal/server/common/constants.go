// Package common provides shared types and utilities for the transport layer.
package common

import "time"

// WebSocket timing constants.
// These are tuned for mobile network tolerance.
const (
	// WriteWait is time allowed to write a message to the peer.
	WriteWait = 15 * time.Second

	// PongWait is time allowed to read the next pong message from the peer.
	PongWait = 90 * time.Second

	// PingPeriod is the interval for sending pings. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10 // 81 seconds

	// MaxMessageSize is the maximum message size allowed from peer.
	MaxMessageSize = 512 * 1024 // 512KB

	// SendBufferSize is the send buffer size per connection, in messages.
	SendBufferSize = 1024

	// SendBufferBytes bounds the bytes queued per connection.
	SendBufferBytes = 8 << 20 // 8MB

	// DefaultShutdownTimeout bounds the graceful part of a server stop.
	DefaultShutdownTimeout = 5 * time.Second
)

// Close codes used by the protocol layer (RFC 6455).
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)
