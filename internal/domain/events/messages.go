package events

import (
	"github.com/brianly1003/ideremote/internal/terminal"
)

// HelloAckPayload acknowledges a handshake. DeviceID is the connection id.
type HelloAckPayload struct {
	DeviceID string `json:"deviceId"`
}

// ApprovalPayload is shared by all approval_* messages.
type ApprovalPayload struct {
	DeviceID string `json:"deviceId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SessionInfo describes a terminal session on the wire.
type SessionInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	WorkingDirectory string `json:"workingDirectory"`
	CreatedAt        int64  `json:"createdAt"` // unix millis
}

// SessionsPayload lists terminal sessions.
type SessionsPayload struct {
	Items []SessionInfo `json:"items"`
}

// TerminalStartedPayload announces a newly created session.
type TerminalStartedPayload struct {
	Session SessionInfo `json:"session"`
}

// TerminalClosedPayload announces a closed session.
type TerminalClosedPayload struct {
	SessionID string `json:"sessionId"`
}

// TerminalErrorPayload reports a failed terminal operation.
type TerminalErrorPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// TerminalOutputPayload carries a terminal snapshot.
type TerminalOutputPayload struct {
	SessionID    string              `json:"sessionId"`
	Output       string              `json:"output"`
	CursorOffset int                 `json:"cursorOffset"`
	Styles       []terminal.StyleRun `json:"styles"`
}

// ErrorPayload is the generic error reply.
type ErrorPayload struct {
	Code        string `json:"code,omitempty"`
	Message     string `json:"message"`
	RequestType string `json:"requestType,omitempty"`
}

// BuildStatusPayload reports build lifecycle changes.
type BuildStatusPayload struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	BuildID     string `json:"buildId,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
}

// BuildOutputPayload mirrors one build message.
type BuildOutputPayload struct {
	BuildID     string `json:"buildId"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	Level       string `json:"level"`
	ProjectName string `json:"projectName"`
}

// RunOutputPayload mirrors one chunk of process output.
type RunOutputPayload struct {
	RunID       string `json:"runId"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	Stream      string `json:"stream"`
	ProjectName string `json:"projectName"`
	ConfigID    string `json:"configId"`
	ExecutorID  string `json:"executorId"`
}

// RunConfigurationInfo describes a run configuration on the wire.
type RunConfigurationInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
}

// RunConfigurationsPayload lists run configurations.
type RunConfigurationsPayload struct {
	Items []RunConfigurationInfo `json:"items"`
}

// RunConfigurationStatusPayload reports the outcome of run_configuration.
type RunConfigurationStatusPayload struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProgressTask is one tracked background task.
type ProgressTask struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Title         string   `json:"title"`
	Detail        string   `json:"detail,omitempty"`
	Fraction      *float64 `json:"fraction,omitempty"`
	Indeterminate bool     `json:"indeterminate"`
	ProjectName   string   `json:"projectName,omitempty"`
	StartedAt     int64    `json:"startedAt"` // unix millis
}

// IDEProgressPayload is the progress snapshot.
type IDEProgressPayload struct {
	Tasks []ProgressTask `json:"tasks"`
}

// Build and run status values.
const (
	StatusRequested = "requested"
	StatusStarted   = "started"
	StatusFinished  = "finished"
	StatusFailed    = "failed"
)

func NewHelloAck(connID string) *Message {
	return New(TypeHelloAck, HelloAckPayload{DeviceID: connID})
}

func NewApprovalRequired(deviceID string) *Message {
	return New(TypeApprovalRequired, ApprovalPayload{DeviceID: deviceID, Message: "waiting for approval on the host"})
}

func NewApprovalPending(deviceID string) *Message {
	return New(TypeApprovalPending, ApprovalPayload{DeviceID: deviceID, Message: "approval is pending"})
}

func NewApprovalGranted(deviceID string) *Message {
	return New(TypeApprovalGranted, ApprovalPayload{DeviceID: deviceID})
}

func NewApprovalDenied(deviceID string) *Message {
	return New(TypeApprovalDenied, ApprovalPayload{DeviceID: deviceID, Message: "connection was rejected on the host"})
}

func NewSessions(items []SessionInfo) *Message {
	if items == nil {
		items = []SessionInfo{}
	}
	return New(TypeSessions, SessionsPayload{Items: items})
}

func NewTerminalStarted(info SessionInfo) *Message {
	return New(TypeTerminalStarted, TerminalStartedPayload{Session: info})
}

func NewTerminalClosed(sessionID string) *Message {
	return New(TypeTerminalClosed, TerminalClosedPayload{SessionID: sessionID})
}

func NewTerminalError(sessionID, message string) *Message {
	return New(TypeTerminalError, TerminalErrorPayload{SessionID: sessionID, Message: message})
}

// NewTerminalOutput builds a terminal_output message. Styles are always
// serialized as an array.
func NewTerminalOutput(sessionID string, snap terminal.Snapshot) *Message {
	styles := snap.Styles
	if styles == nil {
		styles = []terminal.StyleRun{}
	}
	return New(TypeTerminalOutput, TerminalOutputPayload{
		SessionID:    sessionID,
		Output:       snap.Output,
		CursorOffset: snap.CursorOffset,
		Styles:       styles,
	})
}

func NewError(code, message, requestType string) *Message {
	return New(TypeError, ErrorPayload{Code: code, Message: message, RequestType: requestType})
}

func NewBuildStatus(status, message, buildID, projectName string) *Message {
	return New(TypeBuildStatus, BuildStatusPayload{
		Status:      status,
		Message:     message,
		BuildID:     buildID,
		ProjectName: projectName,
	})
}

func NewBuildOutput(p BuildOutputPayload) *Message {
	return New(TypeBuildOutput, p)
}

func NewRunOutput(p RunOutputPayload) *Message {
	return New(TypeRunOutput, p)
}

func NewRunConfigurations(items []RunConfigurationInfo) *Message {
	if items == nil {
		items = []RunConfigurationInfo{}
	}
	return New(TypeRunConfigurations, RunConfigurationsPayload{Items: items})
}

func NewRunConfigurationStatus(status, id, name, message string) *Message {
	return New(TypeRunConfigurationStatus, RunConfigurationStatusPayload{
		Status:  status,
		ID:      id,
		Name:    name,
		Message: message,
	})
}

func NewIDEProgress(tasks []ProgressTask) *Message {
	if tasks == nil {
		tasks = []ProgressTask{}
	}
	return New(TypeIDEProgress, IDEProgressPayload{Tasks: tasks})
}
