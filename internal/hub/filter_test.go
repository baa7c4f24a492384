package hub

import (
	"sync/atomic"
	"testing"

	"github.com/brianly1003/ideremote/internal/domain/events"
)

func TestFilteredSubscriber_Gate(t *testing.T) {
	inner := NewChannelSubscriber("conn-1", 10)
	var open atomic.Bool
	f := NewFilteredSubscriber(inner, func(events.Event) bool { return open.Load() })

	if f.ID() != "conn-1" {
		t.Errorf("ID() = %s", f.ID())
	}

	if err := f.Send(events.NewIDEProgress(nil)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.Events()) != 0 {
		t.Fatal("event forwarded while gate closed")
	}

	open.Store(true)
	if err := f.Send(events.NewIDEProgress(nil)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(inner.Events()) != 1 {
		t.Fatalf("expected 1 forwarded event, got %d", len(inner.Events()))
	}
}

func TestFilteredSubscriber_ByType(t *testing.T) {
	inner := NewChannelSubscriber("c", 10)
	f := NewFilteredSubscriber(inner, func(e events.Event) bool {
		return e.Type() == events.TypeRunOutput
	})

	_ = f.Send(events.NewIDEProgress(nil))
	_ = f.Send(events.NewRunOutput(events.RunOutputPayload{RunID: "r"}))

	if len(inner.Events()) != 1 {
		t.Fatalf("expected 1 event, got %d", len(inner.Events()))
	}
	if e := <-inner.Events(); e.Type() != events.TypeRunOutput {
		t.Errorf("forwarded %s", e.Type())
	}
}

func TestFilteredSubscriber_NilAllowAndClose(t *testing.T) {
	inner := NewChannelSubscriber("c", 10)
	f := NewFilteredSubscriber(inner, nil)

	if err := f.Send(events.NewIDEProgress(nil)); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done() not closed after Close()")
	}
	if err := f.Send(events.NewIDEProgress(nil)); err == nil {
		t.Error("expected error sending to closed subscriber")
	}
}
