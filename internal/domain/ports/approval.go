package ports

import "context"

// ApprovalRequest describes a device asking for access.
type ApprovalRequest struct {
	RequestID  string
	DeviceID   string
	DeviceName string
	RemoteAddr string
}

// Approver asks a human whether a device may connect. RequestApproval
// blocks until a decision is made or ctx is done.
type Approver interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (bool, error)
}
