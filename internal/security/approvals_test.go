package security

import (
	"strings"
	"testing"
	"time"
)

func TestApprovalQueue_SharesPendingRequest(t *testing.T) {
	q := NewApprovalQueue(time.Minute)

	first, created, err := q.EnsurePending("phone", "Pixel", "10.0.0.2:5000")
	if err != nil || !created {
		t.Fatalf("EnsurePending() = %v, %v", created, err)
	}
	if !strings.HasPrefix(first.RequestID, "apprreq_") {
		t.Errorf("RequestID = %q", first.RequestID)
	}

	second, created, err := q.EnsurePending("phone", "Pixel", "10.0.0.2:5001")
	if err != nil || created {
		t.Fatalf("second EnsurePending() created = %v, err = %v", created, err)
	}
	if second.RequestID != first.RequestID {
		t.Error("second connection got a new request")
	}
	if !q.IsPending("phone") || len(q.ListPending()) != 1 {
		t.Error("request not pending")
	}

	if !q.Resolve("phone") {
		t.Error("Resolve() = false")
	}
	if q.Resolve("phone") {
		t.Error("Resolve() twice = true")
	}
	if q.IsPending("phone") {
		t.Error("still pending after Resolve")
	}
}

func TestApprovalQueue_Expiry(t *testing.T) {
	q := NewApprovalQueue(time.Minute)
	now := time.Now()
	q.now = func() time.Time { return now }

	if _, _, err := q.EnsurePending("phone", "", ""); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if q.IsPending("phone") {
		t.Error("expired request still pending")
	}
	if _, created, _ := q.EnsurePending("phone", "", ""); !created {
		t.Error("expired request not replaced")
	}
}

func TestApprovalQueue_RequiresDeviceID(t *testing.T) {
	q := NewApprovalQueue(0)
	if _, _, err := q.EnsurePending("", "", ""); err == nil {
		t.Error("expected error")
	}
}
