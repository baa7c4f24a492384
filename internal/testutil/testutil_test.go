package testutil

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/server/common"
)

type nopSubscriber struct{ id string }

func (s nopSubscriber) ID() string              { return s.id }
func (s nopSubscriber) Send(events.Event) error { return nil }
func (s nopSubscriber) Close() error            { return nil }
func (s nopSubscriber) Done() <-chan struct{}   { return nil }

// recordingListener records started task ids; other callbacks are unused.
type recordingListener struct {
	ports.HostListener
	started *[]string
}

func (l recordingListener) TaskStarted(e ports.TaskEvent) {
	*l.started = append(*l.started, e.ID)
}

func TestMockBroadcaster(t *testing.T) {
	b := NewMockBroadcaster()

	b.Subscribe(nopSubscriber{"a"})
	b.Subscribe(nopSubscriber{"b"})
	b.Subscribe(nopSubscriber{"a"})
	if got := b.SubscriberIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("SubscriberIDs() = %v, want [a b]", got)
	}

	b.Unsubscribe("a")
	b.Unsubscribe("missing")
	if b.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}

	b.Publish(events.NewTerminalClosed("s1"))
	b.Publish(events.NewBuildStatus(events.StatusStarted, "", "b1", ""))
	b.Publish(events.NewTerminalClosed("s2"))

	closed := b.PublishedOfType(events.TypeTerminalClosed)
	if len(closed) != 2 || Decode(closed[1])["sessionId"] != "s2" {
		t.Errorf("PublishedOfType() = %v", closed)
	}

	b.Reset()
	if len(b.Published()) != 0 {
		t.Error("Reset() kept messages")
	}
	if b.SubscriberCount() != 1 {
		t.Error("Reset() dropped subscribers")
	}
}

func TestFakeConn(t *testing.T) {
	c := NewFakeConn("conn-1")

	if err := c.Send(events.NewHelloAck("conn-1")); err != nil {
		t.Fatal(err)
	}
	if got := c.Last(events.TypeHelloAck); got["deviceId"] != "conn-1" {
		t.Errorf("Last(hello_ack) = %v", got)
	}

	c.SetSendError(common.ErrBufferFull)
	if err := c.Send(events.NewTerminalClosed("s1")); !errors.Is(err, common.ErrBufferFull) {
		t.Errorf("Send() error = %v, want ErrBufferFull", err)
	}
	c.SetSendError(nil)

	c.Close(common.ClosePolicyViolation, "denied")
	c.Close(1000, "again")
	if closed, code := c.Closed(); !closed || code != common.ClosePolicyViolation {
		t.Errorf("Closed() = %v, %d", closed, code)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed")
	}
	if err := c.Send(events.NewTerminalClosed("s1")); !errors.Is(err, common.ErrClosed) {
		t.Errorf("Send() after close = %v, want ErrClosed", err)
	}
	if types := c.Types(); len(types) != 1 {
		t.Errorf("Types() = %v", types)
	}
}

func TestFakeTerminal(t *testing.T) {
	term := NewFakeTerminal("t1", "shell", "/work")

	if err := term.SendText("echo hi"); err != nil {
		t.Fatal(err)
	}
	if err := term.SubmitLine(); err != nil {
		t.Fatal(err)
	}
	term.Write([]byte("hi"))

	snap, err := term.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(snap.Output, "echo hi\nhi") {
		t.Errorf("Output = %q", snap.Output)
	}
	if term.Submits() != 1 || len(term.Sent()) != 1 {
		t.Errorf("Submits() = %d, Sent() = %v", term.Submits(), term.Sent())
	}

	calls := 0
	term.OnDispose(func() { calls++ })
	term.Dispose()
	term.Dispose()
	term.OnDispose(func() { calls++ })
	if calls != 2 {
		t.Errorf("dispose callbacks ran %d times, want 2", calls)
	}
	if _, err := term.Snapshot(); err == nil {
		t.Error("Snapshot() after dispose should fail")
	}
}

func TestFakeHost(t *testing.T) {
	h := NewFakeHost(ports.Project{Name: "demo", Path: "/work/demo"})
	ctx := context.Background()

	handle, err := h.CreateTerminal(ctx, h.Projects()[0], "one", "/work/demo")
	if err != nil {
		t.Fatal(err)
	}
	h.AddTerminal(NewFakeTerminal("external", "ext", "/tmp"))
	if n := len(h.Terminals()); n != 2 {
		t.Fatalf("Terminals() = %d, want 2", n)
	}
	handle.Close()
	if n := len(h.Terminals()); n != 1 {
		t.Errorf("Terminals() after close = %d, want 1", n)
	}

	h.SetCreateError(errors.New("no window"))
	if _, err := h.CreateTerminal(ctx, h.Projects()[0], "two", ""); err == nil {
		t.Error("CreateTerminal() should fail")
	}

	var started []string
	unsubscribe := h.Subscribe(recordingListener{started: &started})
	h.Emit(func(l ports.HostListener) { l.TaskStarted(ports.TaskEvent{ID: "t1", Title: "Indexing"}) })
	unsubscribe()
	h.Emit(func(l ports.HostListener) { l.TaskStarted(ports.TaskEvent{ID: "t2", Title: "Indexing"}) })
	if len(started) != 1 || started[0] != "t1" || h.Listeners() != 0 {
		t.Errorf("started = %v, listeners = %d", started, h.Listeners())
	}

	if _, err := h.Run(ctx, ports.RunConfiguration{ID: "app"}); err != nil {
		t.Fatal(err)
	}
	h.SetBuildError(errors.New("busy"))
	if err := h.Build(ctx, h.Projects()[0]); err == nil {
		t.Error("Build() should fail")
	}
	if len(h.Runs()) != 1 || len(h.Builds()) != 0 {
		t.Errorf("Runs() = %v, Builds() = %v", h.Runs(), h.Builds())
	}
}

func TestScriptedApprover_Hold(t *testing.T) {
	a := NewScriptedApprover(false)
	a.Hold()

	result := make(chan bool, 1)
	go func() {
		ok, _ := a.RequestApproval(context.Background(), ports.ApprovalRequest{DeviceID: "phone"})
		result <- ok
	}()

	Eventually(t, time.Second, func() bool { return len(a.Requests()) == 1 }, "request recorded")
	a.Release(true)

	select {
	case ok := <-result:
		if !ok {
			t.Error("held request was not approved")
		}
	case <-time.After(time.Second):
		t.Fatal("held request did not return")
	}
}

func TestScriptedApprover_ContextCancel(t *testing.T) {
	a := NewScriptedApprover(true)
	a.Hold()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.RequestApproval(ctx, ports.ApprovalRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RequestApproval() error = %v, want DeadlineExceeded", err)
	}
}

func TestEventuallyAndNever(t *testing.T) {
	n := 0
	Eventually(t, time.Second, func() bool { n++; return n >= 3 }, "counter")
	Never(t, 30*time.Millisecond, func() bool { return n > 3 }, "counter moved")
}
