// Package commands defines the client-to-server messages of the ideremote
// protocol.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CommandType is the "type" discriminator of an inbound message.
type CommandType string

const (
	CommandHello                 CommandType = "hello"
	CommandListSessions          CommandType = "list_sessions"
	CommandStartTerminal         CommandType = "start_terminal"
	CommandTerminalInput         CommandType = "terminal_input"
	CommandTerminalSnapshot      CommandType = "terminal_snapshot"
	CommandTerminalSubscribe     CommandType = "terminal_subscribe"
	CommandTerminalUnsubscribe   CommandType = "terminal_unsubscribe"
	CommandCloseTerminal         CommandType = "close_terminal"
	CommandBuildProject          CommandType = "build_project"
	CommandListIDEProgress       CommandType = "list_ide_progress"
	CommandListRunConfigurations CommandType = "list_run_configurations"
	CommandRunConfiguration      CommandType = "run_configuration"
)

// ErrMissingType is returned for messages without a "type" field.
var ErrMissingType = errors.New("message has no type")

// Command is a parsed inbound message. Payload fields live next to "type",
// so Raw keeps the whole object for typed decoding.
type Command struct {
	Type CommandType     `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// HelloPayload is the payload for hello.
type HelloPayload struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

// StartTerminalPayload is the payload for start_terminal.
type StartTerminalPayload struct {
	Name             string `json:"name"`
	WorkingDirectory string `json:"workingDirectory"`
}

// TerminalInputPayload is the payload for terminal_input.
type TerminalInputPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

// TerminalSnapshotPayload is the payload for terminal_snapshot.
// Lines <= 0 requests the whole buffer.
type TerminalSnapshotPayload struct {
	SessionID string `json:"sessionId"`
	Lines     int    `json:"lines"`
}

// SessionPayload is the payload for terminal_subscribe, terminal_unsubscribe
// and close_terminal.
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// RunConfigurationPayload is the payload for run_configuration.
type RunConfigurationPayload struct {
	ID string `json:"id"`
}

// ParseCommand parses a JSON message into a Command.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	cmd.Type = CommandType(strings.TrimSpace(string(cmd.Type)))
	if cmd.Type == "" {
		return nil, ErrMissingType
	}
	cmd.Raw = append(json.RawMessage(nil), data...)
	return &cmd, nil
}

// Decode unmarshals the message into a typed payload.
func (c *Command) Decode(v any) error {
	if err := json.Unmarshal(c.Raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", c.Type, err)
	}
	return nil
}

// ParseHelloPayload parses the payload for hello.
func (c *Command) ParseHelloPayload() (*HelloPayload, error) {
	var payload HelloPayload
	if err := c.Decode(&payload); err != nil {
		return nil, err
	}
	payload.DeviceID = strings.TrimSpace(payload.DeviceID)
	payload.DeviceName = strings.TrimSpace(payload.DeviceName)
	return &payload, nil
}

// ParseStartTerminalPayload parses the payload for start_terminal.
func (c *Command) ParseStartTerminalPayload() (*StartTerminalPayload, error) {
	var payload StartTerminalPayload
	if err := c.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ParseTerminalInputPayload parses the payload for terminal_input.
func (c *Command) ParseTerminalInputPayload() (*TerminalInputPayload, error) {
	var payload TerminalInputPayload
	if err := c.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ParseTerminalSnapshotPayload parses the payload for terminal_snapshot.
func (c *Command) ParseTerminalSnapshotPayload() (*TerminalSnapshotPayload, error) {
	var payload TerminalSnapshotPayload
	if err := c.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ParseSessionPayload parses the payload of the session-addressed commands.
func (c *Command) ParseSessionPayload() (*SessionPayload, error) {
	var payload SessionPayload
	if err := c.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ParseRunConfigurationPayload parses the payload for run_configuration.
func (c *Command) ParseRunConfigurationPayload() (*RunConfigurationPayload, error) {
	var payload RunConfigurationPayload
	if err := c.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
