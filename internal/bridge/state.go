package bridge

import (
	"github.com/brianly1003/ideremote/internal/server/common"
	"github.com/brianly1003/ideremote/internal/sync"
)

// ConnState is the per-connection protocol state. approved only ever goes
// from false to true.
type ConnState struct {
	conn common.Conn

	mu                sync.Mutex
	deviceID          string
	deviceName        string
	helloReceived     bool
	approved          bool
	approvalRequested bool
}

func newConnState(c common.Conn) *ConnState {
	return &ConnState{conn: c}
}

// ID returns the connection id.
func (s *ConnState) ID() string { return s.conn.ID() }

// Conn returns the underlying connection.
func (s *ConnState) Conn() common.Conn { return s.conn }

// Device returns the device identity announced in hello.
func (s *ConnState) Device() (id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID, s.deviceName
}

// Approved reports whether the connection passed the approval gate.
func (s *ConnState) Approved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approved
}

// ApprovalRequested reports whether an approval prompt is outstanding.
func (s *ConnState) ApprovalRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvalRequested
}

func (s *ConnState) setIdentity(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceID = id
	s.deviceName = name
	s.helloReceived = true
}

// approve marks the connection approved. It reports false if it already was.
func (s *ConnState) approve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.approved {
		return false
	}
	s.approved = true
	s.approvalRequested = false
	return true
}

func (s *ConnState) setApprovalRequested(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.approved {
		s.approvalRequested = v
	}
}

// ConnectionTable holds the state of every live connection.
type ConnectionTable struct {
	mu    sync.RWMutex
	conns map[string]*ConnState
}

// NewConnectionTable creates an empty table.
func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{conns: make(map[string]*ConnState)}
}

// Add registers c and returns its state.
func (t *ConnectionTable) Add(c common.Conn) *ConnState {
	st := newConnState(c)
	t.mu.Lock()
	t.conns[c.ID()] = st
	t.mu.Unlock()
	return st
}

// Get returns the state of connection id.
func (t *ConnectionTable) Get(id string) (*ConnState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.conns[id]
	return st, ok
}

// Remove drops connection id.
func (t *ConnectionTable) Remove(id string) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

// Len returns the number of connections.
func (t *ConnectionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// ByDevice returns the connections that announced deviceID.
func (t *ConnectionTable) ByDevice(deviceID string) []*ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*ConnState
	for _, st := range t.conns {
		if id, _ := st.Device(); id == deviceID {
			out = append(out, st)
		}
	}
	return out
}
