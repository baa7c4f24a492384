// Package hub fans broadcast messages (run/build output, progress snapshots)
// out to every connected client.
package hub

import (
	"sync/atomic"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/sync"
	"github.com/rs/zerolog/log"
)

const defaultQueueSize = 256

// Hub is the broadcast dispatcher. Publish never blocks: messages are queued
// and delivered by a single goroutine, so every subscriber sees them in
// publish order.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]ports.Subscriber
	running     bool

	queue chan events.Event
	done  chan struct{}

	dropped atomic.Int64
}

var _ ports.Broadcaster = (*Hub)(nil)

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		queue:       make(chan events.Event, defaultQueueSize),
		done:        make(chan struct{}),
	}
}

// Start begins the delivery loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	log.Debug().Msg("broadcast hub started")

	go h.run()
	return nil
}

// Stop ends the delivery loop. Subscribers are left open; their owners
// close them.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	close(h.done)
	log.Debug().Int64("dropped", h.dropped.Load()).Msg("broadcast hub stopped")
	return nil
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.queue:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event events.Event) {
	h.mu.RLock()
	subs := make([]ports.Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(event); err != nil {
			log.Debug().
				Str("subscriber_id", sub.ID()).
				Str("event_type", string(event.Type())).
				Err(err).
				Msg("dropping subscriber after failed send")
			h.Unsubscribe(sub.ID())
		}
	}
}

// Publish queues an event for all subscribers. When the queue is full the
// event is dropped.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.queue <- event:
		log.Trace().Str("event_type", string(event.Type())).Msg("event published")
	default:
		h.dropped.Add(1)
		log.Warn().Str("event_type", string(event.Type())).Msg("event dropped: broadcast queue full")
	}
}

// Subscribe adds a subscriber. It replaces any subscriber with the same ID.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	h.mu.Lock()
	h.subscribers[sub.ID()] = sub
	h.mu.Unlock()
	log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber registered")
}

// Unsubscribe removes a subscriber by ID. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	_, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		log.Debug().Str("subscriber_id", id).Msg("subscriber unregistered")
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dropped returns how many events were dropped because the queue was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
