package hub

import (
	"testing"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
)

func receive(t *testing.T, sub *ChannelSubscriber) events.Event {
	t.Helper()
	select {
	case e := <-sub.Events():
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHub_StartStop(t *testing.T) {
	h := New()

	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.IsRunning() {
		t.Error("hub should be running after Start()")
	}
	if err := h.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.IsRunning() {
		t.Error("hub should not be running after Stop()")
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestHub_PublishFansOutInOrder(t *testing.T) {
	h := New()
	_ = h.Start()
	defer h.Stop()

	a := NewChannelSubscriber("a", 10)
	b := NewChannelSubscriber("b", 10)
	h.Subscribe(a)
	h.Subscribe(b)

	if h.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", h.SubscriberCount())
	}

	h.Publish(events.NewBuildStatus(events.StatusStarted, "", "b1", ""))
	h.Publish(events.NewBuildStatus(events.StatusFinished, "", "b1", ""))

	for _, sub := range []*ChannelSubscriber{a, b} {
		first := receive(t, sub)
		second := receive(t, sub)
		if first.Type() != events.TypeBuildStatus || second.Type() != events.TypeBuildStatus {
			t.Fatalf("unexpected types %s, %s", first.Type(), second.Type())
		}
		p1 := first.(*events.Message).Payload.(events.BuildStatusPayload)
		p2 := second.(*events.Message).Payload.(events.BuildStatusPayload)
		if p1.Status != events.StatusStarted || p2.Status != events.StatusFinished {
			t.Errorf("%s got %s then %s", sub.ID(), p1.Status, p2.Status)
		}
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := New()
	_ = h.Start()
	defer h.Stop()

	sub := NewChannelSubscriber("a", 10)
	h.Subscribe(sub)
	h.Unsubscribe("a")
	h.Unsubscribe("missing")

	h.Publish(events.NewIDEProgress(nil))

	select {
	case e := <-sub.Events():
		t.Errorf("unexpected event %s after unsubscribe", e.Type())
	case <-time.After(50 * time.Millisecond):
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", h.SubscriberCount())
	}
}

func TestHub_FailedSendRemovesSubscriber(t *testing.T) {
	h := New()
	_ = h.Start()
	defer h.Stop()

	closed := NewChannelSubscriber("closed", 1)
	_ = closed.Close()
	live := NewChannelSubscriber("live", 10)
	h.Subscribe(closed)
	h.Subscribe(live)

	h.Publish(events.NewIDEProgress(nil))
	receive(t, live)

	deadline := time.Now().Add(time.Second)
	for h.SubscriberCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", h.SubscriberCount())
	}
}

func TestHub_PublishDropsWhenQueueFull(t *testing.T) {
	h := New() // not started, nothing drains the queue

	for i := 0; i < defaultQueueSize+5; i++ {
		h.Publish(events.NewIDEProgress(nil))
	}
	if h.Dropped() != 5 {
		t.Errorf("Dropped() = %d, want 5", h.Dropped())
	}
}
