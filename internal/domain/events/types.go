// Package events defines the server-to-client messages of the ideremote
// protocol. Every message is a flat JSON object carrying a "type"
// discriminator next to its payload fields.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Type is the "type" discriminator of an outbound message.
type Type string

const (
	// Handshake and approval
	TypeHelloAck         Type = "hello_ack"
	TypeApprovalRequired Type = "approval_required"
	TypeApprovalPending  Type = "approval_pending"
	TypeApprovalGranted  Type = "approval_granted"
	TypeApprovalDenied   Type = "approval_denied"

	// Terminal sessions
	TypeSessions        Type = "sessions"
	TypeTerminalStarted Type = "terminal_started"
	TypeTerminalClosed  Type = "terminal_closed"
	TypeTerminalError   Type = "terminal_error"
	TypeTerminalOutput  Type = "terminal_output"

	// Build and run mirroring
	TypeBuildStatus            Type = "build_status"
	TypeBuildOutput            Type = "build_output"
	TypeRunOutput              Type = "run_output"
	TypeRunConfigurations      Type = "run_configurations"
	TypeRunConfigurationStatus Type = "run_configuration_status"

	// Progress
	TypeIDEProgress Type = "ide_progress"

	// Generic failure
	TypeError Type = "error"
)

// Event is the base interface for all outbound messages.
type Event interface {
	// Type returns the message type.
	Type() Type

	// Timestamp returns when the message was created.
	Timestamp() time.Time

	// ToJSON serializes the message to its wire form.
	ToJSON() ([]byte, error)
}

// Message is the concrete Event. Payload must marshal to a JSON object (or be
// nil); its fields are flattened next to "type".
type Message struct {
	MsgType Type
	Created time.Time
	Payload any
}

// New creates a message of type t with the given payload.
func New(t Type, payload any) *Message {
	return &Message{MsgType: t, Created: time.Now(), Payload: payload}
}

// Type returns the message type.
func (m *Message) Type() Type {
	return m.MsgType
}

// Timestamp returns when the message was created.
func (m *Message) Timestamp() time.Time {
	return m.Created
}

// ToJSON serializes the message as {"type":"...", <payload fields>}.
func (m *Message) ToJSON() ([]byte, error) {
	head, err := json.Marshal(struct {
		Type Type `json:"type"`
	}{m.MsgType})
	if err != nil {
		return nil, err
	}
	if m.Payload == nil {
		return head, nil
	}

	body, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.MsgType, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("%s payload is not a JSON object", m.MsgType)
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
