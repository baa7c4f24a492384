package ports

import (
	"github.com/brianly1003/ideremote/internal/domain/events"
)

// Subscriber receives broadcast messages. Each approved connection registers
// one.
type Subscriber interface {
	ID() string

	// Send queues an event. It returns an error once the subscriber is
	// closed; callers drop the subscriber then.
	Send(event events.Event) error

	Close() error
	Done() <-chan struct{}
}

// Broadcaster fans messages out to every registered subscriber without
// blocking the publisher.
type Broadcaster interface {
	Publish(event events.Event)
	Subscribe(sub Subscriber)
	Unsubscribe(id string)
	SubscriberCount() int
}
