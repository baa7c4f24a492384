package common

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrBufferFull is returned when a message does not fit in the queue.
	ErrBufferFull = errors.New("send buffer full")

	// ErrClosed is returned by operations on a closed connection or buffer.
	ErrClosed = errors.New("closed")
)

// SendBuffer is the outbound queue of one connection, bounded both by
// message count and by queued bytes so a stalled phone cannot pin a large
// backlog of terminal snapshots. A single writer drains it and calls
// Release for every message it takes, which keeps per-connection ordering.
type SendBuffer struct {
	id       string
	ch       chan []byte
	done     chan struct{}
	maxBytes int

	mu      sync.Mutex
	closed  bool
	queued  int
	dropped int
}

// NewSendBuffer creates a buffer holding at most capacity messages and
// maxBytes bytes. maxBytes <= 0 disables the byte bound.
func NewSendBuffer(id string, capacity, maxBytes int) *SendBuffer {
	return &SendBuffer{
		id:       id,
		ch:       make(chan []byte, capacity),
		done:     make(chan struct{}),
		maxBytes: maxBytes,
	}
}

// Send queues data. A message larger than the whole byte budget is still
// accepted when nothing else is queued.
func (b *SendBuffer) Send(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if b.maxBytes > 0 && b.queued > 0 && b.queued+len(data) > b.maxBytes {
		return b.dropLocked("byte budget exceeded")
	}
	select {
	case b.ch <- data:
		b.queued += len(data)
		return nil
	default:
		return b.dropLocked("queue full")
	}
}

func (b *SendBuffer) dropLocked(why string) error {
	b.dropped++
	// First drop and every hundredth after it.
	if b.dropped%100 == 1 {
		log.Warn().
			Str("conn_id", b.id).
			Str("reason", why).
			Int("dropped", b.dropped).
			Int("queued_bytes", b.queued).
			Msg("dropping outbound message")
	}
	return ErrBufferFull
}

// Channel returns the queue for the writer.
func (b *SendBuffer) Channel() <-chan []byte { return b.ch }

// Release returns n bytes taken from Channel to the budget.
func (b *SendBuffer) Release(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = max(b.queued-n, 0)
}

// Close stops accepting messages. Queued data stays readable from Channel.
func (b *SendBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

func (b *SendBuffer) Done() <-chan struct{} { return b.done }

func (b *SendBuffer) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Queued returns the number of bytes waiting for the writer.
func (b *SendBuffer) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}

// Dropped returns how many messages were refused.
func (b *SendBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
