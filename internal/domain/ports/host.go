// Package ports defines the contracts between the protocol core and its
// external collaborators: the host application, the approval prompt and
// the event fan-out.
package ports

import (
	"context"

	"github.com/brianly1003/ideremote/internal/terminal"
)

// Project is an open project in the host.
type Project struct {
	Name string
	Path string
}

// TerminalHandle is a terminal widget owned by the host.
type TerminalHandle interface {
	// Identity returns a stable identity for the underlying terminal, used to
	// derive ids for terminals the host created on its own.
	Identity() string

	Name() string
	WorkingDirectory() string

	// SendText types raw text into the terminal.
	SendText(text string) error

	// SubmitLine performs the host's "enter" action.
	SubmitLine() error

	// Snapshot reads the styled buffer and cursor under the host's own
	// buffer lock.
	Snapshot() (terminal.Snapshot, error)

	// Close asks the host to dispose the terminal.
	Close() error

	// OnDispose registers fn to run once when the host disposes the
	// terminal. If it is already disposed fn runs immediately.
	OnDispose(fn func())

	// Disposed reports whether the host has disposed the terminal.
	Disposed() bool
}

// RunConfiguration is a named way of running something in the host.
type RunConfiguration struct {
	ID               string `yaml:"id" json:"id"`
	Name             string `yaml:"name" json:"name"`
	Type             string `yaml:"type" json:"type"`
	Command          string `yaml:"command" json:"command"`
	WorkingDirectory string `yaml:"workingDirectory" json:"workingDirectory"`
	ProjectName      string `yaml:"project" json:"project"`
}

// RunLaunch identifies a started execution.
type RunLaunch struct {
	ExecutionID string
	ExecutorID  string
}

// Host is everything the core needs from the host application.
type Host interface {
	// Projects returns the open projects, first one is the default target.
	Projects() []Project

	// CreateTerminal materializes a new terminal in project.
	CreateTerminal(ctx context.Context, project Project, name, workDir string) (TerminalHandle, error)

	// Terminals returns every terminal currently open in the host,
	// including ones created outside this process.
	Terminals() []TerminalHandle

	// RunConfigurations returns the current run configuration list.
	RunConfigurations(ctx context.Context) ([]RunConfiguration, error)

	// Run launches a run configuration.
	Run(ctx context.Context, cfg RunConfiguration) (RunLaunch, error)

	// Build triggers a build of project. It returns once the build has been
	// started; progress arrives through HostListener.
	Build(ctx context.Context, project Project) error

	// Subscribe registers a listener for host events and returns a function
	// that removes it.
	Subscribe(l HostListener) (unsubscribe func())
}

// TaskEvent describes a background task reported by the host.
type TaskEvent struct {
	ID            string
	Title         string
	Detail        string
	Fraction      float64
	Indeterminate bool
	ProjectName   string
	Running       bool
}

// ProcessStart describes a started execution.
type ProcessStart struct {
	ExecutionID string
	Name        string
	ConfigID    string
	ExecutorID  string
	ProjectName string
}

// Output stream classifications.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamSystem = "system"
)

// ProcessOutput is a chunk of process output.
type ProcessOutput struct {
	ExecutionID string
	Text        string
	Stream      string
}

// ProcessExit reports process termination.
type ProcessExit struct {
	ExecutionID string
	ExitCode    int
}

// BuildStart describes a started build invocation.
type BuildStart struct {
	BuildID     string
	Title       string
	ProjectName string
}

// Build message severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// BuildMessage is one message emitted by a build.
type BuildMessage struct {
	BuildID  string
	Text     string
	Severity string
}

// BuildResult reports the end of a build.
type BuildResult struct {
	BuildID  string
	Success  bool
	Errors   int
	Warnings int
	Message  string
}

// HostListener receives host events. Implementations must not block.
type HostListener interface {
	TaskStarted(TaskEvent)
	TaskUpdated(TaskEvent)
	TaskFinished(id string)

	ProcessStarted(ProcessStart)
	ProcessOutput(ProcessOutput)
	ProcessTerminated(ProcessExit)

	BuildStarted(BuildStart)
	BuildMessage(BuildMessage)
	BuildFinished(BuildResult)
}
