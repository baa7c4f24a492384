// Package runs mirrors host run and build output to connected clients.
//
// Host executions and builds are identified by host-side handles. The mirror
// correlates each handle with a client-facing id and label for as long as the
// underlying process or build is alive. Output is broadcast as it arrives;
// nothing is buffered for late subscribers.
package runs

import (
	"fmt"
	"strings"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/sync"
	"github.com/google/uuid"
)

const (
	defaultRunName    = "Run"
	defaultBuildTitle = "Build"
)

// runContext correlates a host execution with a client-facing run id.
type runContext struct {
	runID       string
	name        string
	configID    string
	executorID  string
	projectName string
}

// buildContext correlates a host build with a client-facing build id.
type buildContext struct {
	buildID     string
	title       string
	projectName string
}

// Mirror converts host process and build events into broadcast messages.
// It is safe for concurrent use.
type Mirror struct {
	publish func(events.Event)

	mu     sync.Mutex
	runs   map[string]*runContext
	builds map[string]*buildContext

	// defaultProject labels output that arrives without a project name.
	defaultProject func() string
}

// NewMirror creates a mirror that hands every message to publish.
func NewMirror(publish func(events.Event)) *Mirror {
	return &Mirror{
		publish: publish,
		runs:    make(map[string]*runContext),
		builds:  make(map[string]*buildContext),
	}
}

// SetDefaultProject sets the function used to label events whose host
// payload carries no project name.
func (m *Mirror) SetDefaultProject(fn func() string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultProject = fn
}

// ActiveRuns returns the number of tracked executions.
func (m *Mirror) ActiveRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// ActiveBuilds returns the number of tracked builds.
func (m *Mirror) ActiveBuilds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.builds)
}

func (m *Mirror) projectOr(name string) string {
	if name != "" || m.defaultProject == nil {
		return name
	}
	return m.defaultProject()
}

// ProcessStarted records a new execution.
func (m *Mirror) ProcessStarted(ev ports.ProcessStart) {
	if ev.ExecutionID == "" {
		return
	}
	name := strings.TrimSpace(ev.Name)
	if name == "" {
		name = defaultRunName
	}

	m.mu.Lock()
	m.runs[ev.ExecutionID] = &runContext{
		runID:       uuid.New().String(),
		name:        name,
		configID:    ev.ConfigID,
		executorID:  ev.ExecutorID,
		projectName: m.projectOr(ev.ProjectName),
	}
	m.mu.Unlock()
}

// ProcessOutput broadcasts a chunk of output. Output for an execution that
// was never announced gets a context on the fly.
func (m *Mirror) ProcessOutput(ev ports.ProcessOutput) {
	if ev.ExecutionID == "" || ev.Text == "" {
		return
	}

	m.mu.Lock()
	rc, ok := m.runs[ev.ExecutionID]
	if !ok {
		rc = &runContext{
			runID:       uuid.New().String(),
			name:        defaultRunName,
			projectName: m.projectOr(""),
		}
		m.runs[ev.ExecutionID] = rc
	}
	payload := events.RunOutputPayload{
		RunID:       rc.runID,
		Name:        rc.name,
		Text:        ev.Text,
		Stream:      normalizeStream(ev.Stream),
		ProjectName: rc.projectName,
		ConfigID:    rc.configID,
		ExecutorID:  rc.executorID,
	}
	m.mu.Unlock()

	m.publish(events.NewRunOutput(payload))
}

// ProcessTerminated drops the execution context.
func (m *Mirror) ProcessTerminated(ev ports.ProcessExit) {
	m.mu.Lock()
	delete(m.runs, ev.ExecutionID)
	m.mu.Unlock()
}

// BuildStarted records a new build and announces it.
func (m *Mirror) BuildStarted(ev ports.BuildStart) {
	if ev.BuildID == "" {
		return
	}
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = defaultBuildTitle
	}

	m.mu.Lock()
	bc := &buildContext{
		buildID:     uuid.New().String(),
		title:       title,
		projectName: m.projectOr(ev.ProjectName),
	}
	m.builds[ev.BuildID] = bc
	m.mu.Unlock()

	m.publish(events.NewBuildStatus(events.StatusStarted, title, bc.buildID, bc.projectName))
}

// BuildMessage broadcasts one build message.
func (m *Mirror) BuildMessage(ev ports.BuildMessage) {
	if ev.BuildID == "" || ev.Text == "" {
		return
	}

	m.mu.Lock()
	bc, ok := m.builds[ev.BuildID]
	if !ok {
		bc = &buildContext{
			buildID:     uuid.New().String(),
			title:       defaultBuildTitle,
			projectName: m.projectOr(""),
		}
		m.builds[ev.BuildID] = bc
	}
	payload := events.BuildOutputPayload{
		BuildID:     bc.buildID,
		Title:       bc.title,
		Text:        ev.Text,
		Level:       normalizeSeverity(ev.Severity),
		ProjectName: bc.projectName,
	}
	m.mu.Unlock()

	m.publish(events.NewBuildOutput(payload))
}

// BuildFinished drops the build context and broadcasts the final status.
func (m *Mirror) BuildFinished(ev ports.BuildResult) {
	m.mu.Lock()
	bc, ok := m.builds[ev.BuildID]
	delete(m.builds, ev.BuildID)
	m.mu.Unlock()

	var buildID, projectName string
	if ok {
		buildID = bc.buildID
		projectName = bc.projectName
	} else {
		projectName = m.projectOr("")
	}

	status := events.StatusFinished
	if !ev.Success {
		status = events.StatusFailed
	}
	m.publish(events.NewBuildStatus(status, summary(ev), buildID, projectName))
}

func summary(ev ports.BuildResult) string {
	if ev.Message != "" {
		return ev.Message
	}
	var b strings.Builder
	if ev.Success {
		b.WriteString("Build succeeded")
	} else {
		b.WriteString("Build failed")
	}
	if ev.Errors > 0 || ev.Warnings > 0 {
		b.WriteString(" (")
		b.WriteString(plural(ev.Errors, "error"))
		b.WriteString(", ")
		b.WriteString(plural(ev.Warnings, "warning"))
		b.WriteString(")")
	}
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func normalizeStream(s string) string {
	switch s {
	case ports.StreamStdout, ports.StreamStderr, ports.StreamSystem:
		return s
	default:
		return ports.StreamStdout
	}
}

func normalizeSeverity(s string) string {
	switch s {
	case ports.SeverityInfo, ports.SeverityWarning, ports.SeverityError:
		return s
	default:
		return ports.SeverityInfo
	}
}
