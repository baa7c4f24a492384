package bridge

import (
	"sort"

	"github.com/brianly1003/ideremote/internal/sync"
	"github.com/brianly1003/ideremote/internal/terminal"
)

// Subscriptions maps connections to the terminal sessions they stream, and
// keeps the last snapshot pushed per session. A cache entry lives only while
// some connection subscribes to its session.
type Subscriptions struct {
	mu         sync.Mutex
	byConn     map[string]map[string]struct{}
	bySession  map[string]map[string]struct{}
	lastPushed map[string]terminal.Snapshot
}

// NewSubscriptions creates empty tables.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		byConn:     make(map[string]map[string]struct{}),
		bySession:  make(map[string]map[string]struct{}),
		lastPushed: make(map[string]terminal.Snapshot),
	}
}

// Subscribe adds sessionID to connID's set. It reports whether connID is now
// the session's only subscriber.
func (s *Subscriptions) Subscribe(connID, sessionID string) (sole bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	add(s.byConn, connID, sessionID)
	add(s.bySession, sessionID, connID)
	return len(s.bySession[sessionID]) == 1
}

// Unsubscribe removes sessionID from connID's set.
func (s *Subscriptions) Unsubscribe(connID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked(connID, sessionID)
}

func (s *Subscriptions) unsubscribeLocked(connID, sessionID string) {
	drop(s.byConn, connID, sessionID)
	if drop(s.bySession, sessionID, connID) {
		delete(s.lastPushed, sessionID)
	}
}

// RemoveConn drops every subscription of connID.
func (s *Subscriptions) RemoveConn(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID := range s.byConn[connID] {
		s.unsubscribeLocked(connID, sessionID)
	}
	delete(s.byConn, connID)
}

// RemoveSession drops every subscription to sessionID and its cache entry.
// It returns the connections that were subscribed.
func (s *Subscriptions) RemoveSession(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conns []string
	for connID := range s.bySession[sessionID] {
		conns = append(conns, connID)
		drop(s.byConn, connID, sessionID)
	}
	delete(s.bySession, sessionID)
	delete(s.lastPushed, sessionID)
	sort.Strings(conns)
	return conns
}

// Sessions returns the sessions with at least one subscriber.
func (s *Subscriptions) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bySession))
	for id := range s.bySession {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns the connections subscribed to sessionID.
func (s *Subscriptions) Subscribers(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bySession[sessionID]))
	for id := range s.bySession[sessionID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether connID subscribes to sessionID.
func (s *Subscriptions) IsSubscribed(connID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byConn[connID][sessionID]
	return ok
}

// Last returns the last snapshot pushed for sessionID.
func (s *Subscriptions) Last(sessionID string) (terminal.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.lastPushed[sessionID]
	return snap, ok
}

// SetLast records snap as pushed for sessionID. Sessions without
// subscribers are not cached.
func (s *Subscriptions) SetLast(sessionID string, snap terminal.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bySession[sessionID]) == 0 {
		return
	}
	s.lastPushed[sessionID] = snap
}

// CacheSize returns the number of cached snapshots.
func (s *Subscriptions) CacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastPushed)
}

func add(m map[string]map[string]struct{}, key, val string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[val] = struct{}{}
}

// drop removes val from m[key] and reports whether the set became empty.
func drop(m map[string]map[string]struct{}, key, val string) bool {
	set, ok := m[key]
	if !ok {
		return false
	}
	delete(set, val)
	if len(set) == 0 {
		delete(m, key)
		return true
	}
	return false
}
