package hub

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/rs/zerolog"
)

// ChannelSubscriber delivers events to a buffered channel. A full buffer is
// reported like a closed subscriber so the hub drops it.
type ChannelSubscriber struct {
	id   string
	ch   chan events.Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewChannelSubscriber(id string, size int) *ChannelSubscriber {
	return &ChannelSubscriber{id: id, ch: make(chan events.Event, size), done: make(chan struct{})}
}

func (s *ChannelSubscriber) ID() string                  { return s.id }
func (s *ChannelSubscriber) Done() <-chan struct{}       { return s.done }
func (s *ChannelSubscriber) Events() <-chan events.Event { return s.ch }

func (s *ChannelSubscriber) Send(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSubscriberClosed
	}
	select {
	case s.ch <- e:
		return nil
	default:
		return domain.ErrSubscriberClosed
	}
}

func (s *ChannelSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
		close(s.ch)
	}
	return nil
}

func TestTraceSubscriber_CountsAndLogs(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	sub := NewTraceSubscriber("trace", zerolog.New(&buf).Level(zerolog.TraceLevel))

	_ = sub.Send(events.NewIDEProgress(nil))
	_ = sub.Send(events.NewBuildStatus(events.StatusStarted, "", "b1", ""))
	_ = sub.Send(events.NewIDEProgress(nil))

	counts := sub.Counts()
	if counts[events.TypeIDEProgress] != 2 || counts[events.TypeBuildStatus] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
	if sub.Total() != 3 {
		t.Errorf("Total() = %d, want 3", sub.Total())
	}
	if n := strings.Count(buf.String(), `"message":"event broadcast"`); n != 3 {
		t.Errorf("trace lines = %d, want 3: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"event_type":"build_status"`) {
		t.Errorf("missing event_type field: %s", buf.String())
	}

	buf.Reset()
	sub.LogTotals()
	if !strings.Contains(buf.String(), `"ide_progress":2`) || !strings.Contains(buf.String(), `"total":3`) {
		t.Errorf("totals = %s", buf.String())
	}
}

func TestTraceSubscriber_QuietAboveTrace(t *testing.T) {
	var buf bytes.Buffer
	sub := NewTraceSubscriber("trace", zerolog.New(&buf).Level(zerolog.InfoLevel))

	_ = sub.Send(events.NewIDEProgress(nil))
	if buf.Len() != 0 {
		t.Errorf("logged at info level: %s", buf.String())
	}
	if sub.Total() != 1 {
		t.Errorf("Total() = %d, want 1", sub.Total())
	}
}

func TestTraceSubscriber_Close(t *testing.T) {
	sub := NewTraceSubscriber("trace", zerolog.Nop())

	_ = sub.Close()
	_ = sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Error("Done() not closed")
	}
	if err := sub.Send(events.NewIDEProgress(nil)); !errors.Is(err, domain.ErrSubscriberClosed) {
		t.Errorf("Send() after Close() = %v", err)
	}
}

func TestChannelSubscriber_FullBuffer(t *testing.T) {
	sub := NewChannelSubscriber("s", 1)

	if err := sub.Send(events.NewIDEProgress(nil)); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if err := sub.Send(events.NewIDEProgress(nil)); !errors.Is(err, domain.ErrSubscriberClosed) {
		t.Errorf("Send() on full buffer = %v, want ErrSubscriberClosed", err)
	}
}
