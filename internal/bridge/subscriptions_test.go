package bridge

import (
	"testing"

	"github.com/brianly1003/ideremote/internal/terminal"
)

func TestSubscriptions_CacheFollowsSubscribers(t *testing.T) {
	s := NewSubscriptions()

	if sole := s.Subscribe("a", "s1"); !sole {
		t.Error("first subscriber should be sole")
	}
	if sole := s.Subscribe("b", "s1"); sole {
		t.Error("second subscriber reported sole")
	}
	s.SetLast("s1", terminal.Snapshot{Output: "x"})

	s.Unsubscribe("a", "s1")
	if _, ok := s.Last("s1"); !ok {
		t.Error("cache evicted while b still subscribed")
	}

	s.RemoveConn("b")
	if _, ok := s.Last("s1"); ok {
		t.Error("cache kept without subscribers")
	}
	if got := s.Sessions(); len(got) != 0 {
		t.Errorf("Sessions() = %v", got)
	}
}

func TestSubscriptions_SetLastWithoutSubscribers(t *testing.T) {
	s := NewSubscriptions()
	s.SetLast("s1", terminal.Snapshot{Output: "x"})
	if s.CacheSize() != 0 {
		t.Error("cached a session nobody subscribes to")
	}
}

func TestSubscriptions_RemoveSession(t *testing.T) {
	s := NewSubscriptions()
	s.Subscribe("b", "s1")
	s.Subscribe("a", "s1")
	s.Subscribe("a", "s2")
	s.SetLast("s1", terminal.Snapshot{Output: "x"})

	conns := s.RemoveSession("s1")
	if len(conns) != 2 || conns[0] != "a" || conns[1] != "b" {
		t.Errorf("RemoveSession() = %v", conns)
	}
	if s.IsSubscribed("a", "s1") || !s.IsSubscribed("a", "s2") {
		t.Error("wrong subscriptions removed")
	}
	if s.CacheSize() != 0 {
		t.Errorf("CacheSize() = %d", s.CacheSize())
	}
	if subs := s.Subscribers("s2"); len(subs) != 1 || subs[0] != "a" {
		t.Errorf("Subscribers(s2) = %v", subs)
	}
}
