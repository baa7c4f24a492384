package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultApprovalTTL bounds how long a device stays pending.
const DefaultApprovalTTL = 5 * time.Minute

// PendingApproval is a device waiting for a decision on the host.
type PendingApproval struct {
	RequestID  string    `json:"request_id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	RemoteAddr string    `json:"remote_addr"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ApprovalQueue tracks devices with an outstanding approval prompt, so that
// several connections from one device share a single prompt.
type ApprovalQueue struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]*PendingApproval // keyed by device id
	now     func() time.Time
}

// NewApprovalQueue creates an empty queue. ttl <= 0 uses DefaultApprovalTTL.
func NewApprovalQueue(ttl time.Duration) *ApprovalQueue {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	return &ApprovalQueue{
		ttl:     ttl,
		pending: make(map[string]*PendingApproval),
		now:     time.Now,
	}
}

// EnsurePending returns the pending request for deviceID, creating it when
// there is none. created is true when the caller should prompt.
func (q *ApprovalQueue) EnsurePending(deviceID, deviceName, remoteAddr string) (req PendingApproval, created bool, err error) {
	if deviceID == "" {
		return PendingApproval{}, false, fmt.Errorf("device id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.cleanupExpiredLocked(now)

	if existing, ok := q.pending[deviceID]; ok {
		return *existing, false, nil
	}

	requestID, err := newApprovalRequestID()
	if err != nil {
		return PendingApproval{}, false, err
	}
	p := &PendingApproval{
		RequestID:  requestID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		RemoteAddr: remoteAddr,
		CreatedAt:  now.UTC(),
		ExpiresAt:  now.Add(q.ttl).UTC(),
	}
	q.pending[deviceID] = p
	return *p, true, nil
}

// IsPending reports whether deviceID has an outstanding request.
func (q *ApprovalQueue) IsPending(deviceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleanupExpiredLocked(q.now())
	_, ok := q.pending[deviceID]
	return ok
}

// Resolve removes the request for deviceID. It reports whether one existed.
func (q *ApprovalQueue) Resolve(deviceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[deviceID]
	delete(q.pending, deviceID)
	return ok
}

// ListPending returns the outstanding requests.
func (q *ApprovalQueue) ListPending() []PendingApproval {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cleanupExpiredLocked(q.now())
	out := make([]PendingApproval, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, *p)
	}
	return out
}

func (q *ApprovalQueue) cleanupExpiredLocked(now time.Time) {
	for id, p := range q.pending {
		if !p.ExpiresAt.After(now) {
			delete(q.pending, id)
		}
	}
}

func newApprovalRequestID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate approval request id: %w", err)
	}
	return "apprreq_" + hex.EncodeToString(buf), nil
}
