package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/terminal"
)

// FakeTerminal is an in-memory ports.TerminalHandle that echoes typed text
// into a screen, the way a shell with echo on would.
type FakeTerminal struct {
	identity string
	name     string
	workDir  string

	mu        sync.Mutex
	screen    *terminal.Screen
	disposed  bool
	onDispose []func()
	sent      []string
	submits   int
	sendErr   error
}

// NewFakeTerminal creates a fake terminal.
func NewFakeTerminal(identity, name, workDir string) *FakeTerminal {
	return &FakeTerminal{
		identity: identity,
		name:     name,
		workDir:  workDir,
		screen:   terminal.NewScreen(80, 24, 200),
	}
}

func (f *FakeTerminal) Identity() string         { return f.identity }
func (f *FakeTerminal) Name() string             { return f.name }
func (f *FakeTerminal) WorkingDirectory() string { return f.workDir }

// SendText echoes text into the screen.
func (f *FakeTerminal) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.disposed {
		return errors.New("terminal disposed")
	}
	f.sent = append(f.sent, text)
	_, err := f.screen.WriteString(text)
	return err
}

// SubmitLine moves to a new line.
func (f *FakeTerminal) SubmitLine() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return errors.New("terminal disposed")
	}
	f.submits++
	_, err := f.screen.WriteString("\r\n")
	return err
}

// Write feeds raw program output into the screen.
func (f *FakeTerminal) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screen.Write(p)
}

// Snapshot returns the current screen.
func (f *FakeTerminal) Snapshot() (terminal.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return terminal.Snapshot{}, errors.New("terminal disposed")
	}
	return f.screen.Snapshot(), nil
}

// Close disposes the terminal.
func (f *FakeTerminal) Close() error {
	f.Dispose()
	return nil
}

// Dispose marks the terminal disposed and runs dispose callbacks once.
func (f *FakeTerminal) Dispose() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.disposed = true
	fns := f.onDispose
	f.onDispose = nil
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnDispose registers fn. It runs immediately if already disposed.
func (f *FakeTerminal) OnDispose(fn func()) {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		fn()
		return
	}
	f.onDispose = append(f.onDispose, fn)
	f.mu.Unlock()
}

// Disposed reports whether the terminal was disposed.
func (f *FakeTerminal) Disposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// Sent returns the text spans passed to SendText.
func (f *FakeTerminal) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// Submits returns how many times SubmitLine was called.
func (f *FakeTerminal) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// SetSendError makes SendText fail with err.
func (f *FakeTerminal) SetSendError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

var _ ports.TerminalHandle = (*FakeTerminal)(nil)

// FakeHost implements ports.Host in memory.
type FakeHost struct {
	mu         sync.Mutex
	projects   []ports.Project
	terminals  []*FakeTerminal
	configs    []ports.RunConfiguration
	listeners  map[int]ports.HostListener
	nextID     int
	created    int
	runs       []ports.RunConfiguration
	builds     []ports.Project
	createErr  error
	createWait time.Duration
	runErr     error
	buildErr   error
}

// NewFakeHost creates a host with the given projects.
func NewFakeHost(projects ...ports.Project) *FakeHost {
	return &FakeHost{
		projects:  projects,
		listeners: make(map[int]ports.HostListener),
	}
}

func (h *FakeHost) Projects() []ports.Project {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.Project(nil), h.projects...)
}

// CreateTerminal creates a FakeTerminal, honoring SetCreateDelay and
// SetCreateError.
func (h *FakeHost) CreateTerminal(ctx context.Context, project ports.Project, name, workDir string) (ports.TerminalHandle, error) {
	h.mu.Lock()
	wait, err := h.createWait, h.createErr
	h.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.created++
	t := NewFakeTerminal(fmt.Sprintf("term-%d", h.created), name, workDir)
	h.terminals = append(h.terminals, t)
	return t, nil
}

// AddTerminal registers a terminal created outside the server.
func (h *FakeHost) AddTerminal(t *FakeTerminal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminals = append(h.terminals, t)
}

// Terminals returns the open terminals.
func (h *FakeHost) Terminals() []ports.TerminalHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ports.TerminalHandle
	for _, t := range h.terminals {
		if !t.Disposed() {
			out = append(out, t)
		}
	}
	return out
}

// CreatedTerminals returns every terminal made by CreateTerminal or
// AddTerminal, disposed ones included.
func (h *FakeHost) CreatedTerminals() []*FakeTerminal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*FakeTerminal(nil), h.terminals...)
}

func (h *FakeHost) RunConfigurations(ctx context.Context) ([]ports.RunConfiguration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.RunConfiguration(nil), h.configs...), nil
}

// SetRunConfigurations replaces the run configuration list.
func (h *FakeHost) SetRunConfigurations(cfgs ...ports.RunConfiguration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configs = cfgs
}

// Run records the launch.
func (h *FakeHost) Run(ctx context.Context, cfg ports.RunConfiguration) (ports.RunLaunch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runErr != nil {
		return ports.RunLaunch{}, h.runErr
	}
	h.runs = append(h.runs, cfg)
	return ports.RunLaunch{ExecutionID: fmt.Sprintf("exec-%d", len(h.runs)), ExecutorID: "run"}, nil
}

// Build records the build request.
func (h *FakeHost) Build(ctx context.Context, project ports.Project) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.buildErr != nil {
		return h.buildErr
	}
	h.builds = append(h.builds, project)
	return nil
}

// Subscribe registers a listener.
func (h *FakeHost) Subscribe(l ports.HostListener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Listeners returns the number of registered listeners.
func (h *FakeHost) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Emit calls fn for every registered listener.
func (h *FakeHost) Emit(fn func(ports.HostListener)) {
	h.mu.Lock()
	ls := make([]ports.HostListener, 0, len(h.listeners))
	for _, l := range h.listeners {
		ls = append(ls, l)
	}
	h.mu.Unlock()

	for _, l := range ls {
		fn(l)
	}
}

// Runs returns the launched configurations.
func (h *FakeHost) Runs() []ports.RunConfiguration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.RunConfiguration(nil), h.runs...)
}

// Builds returns the projects a build was requested for.
func (h *FakeHost) Builds() []ports.Project {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.Project(nil), h.builds...)
}

// SetCreateDelay makes CreateTerminal sleep for d first.
func (h *FakeHost) SetCreateDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.createWait = d
}

// SetCreateError makes CreateTerminal fail.
func (h *FakeHost) SetCreateError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.createErr = err
}

// SetRunError makes Run fail.
func (h *FakeHost) SetRunError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runErr = err
}

// SetBuildError makes Build fail.
func (h *FakeHost) SetBuildError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buildErr = err
}

var _ ports.Host = (*FakeHost)(nil)

// ScriptedApprover answers approval requests from a fixed decision, or
// blocks until Release is called when Hold is set.
type ScriptedApprover struct {
	mu       sync.Mutex
	approve  bool
	err      error
	hold     chan bool
	requests []ports.ApprovalRequest
}

// NewScriptedApprover returns an approver that answers approve.
func NewScriptedApprover(approve bool) *ScriptedApprover {
	return &ScriptedApprover{approve: approve}
}

// Hold makes subsequent requests wait for Release.
func (a *ScriptedApprover) Hold() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hold = make(chan bool, 16)
}

// Release answers one held request.
func (a *ScriptedApprover) Release(approve bool) {
	a.mu.Lock()
	hold := a.hold
	a.mu.Unlock()
	if hold != nil {
		hold <- approve
	}
}

// SetError makes requests fail with err.
func (a *ScriptedApprover) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// RequestApproval records req and answers it.
func (a *ScriptedApprover) RequestApproval(ctx context.Context, req ports.ApprovalRequest) (bool, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	hold, approve, err := a.hold, a.approve, a.err
	a.mu.Unlock()

	if err != nil {
		return false, err
	}
	if hold == nil {
		return approve, nil
	}
	select {
	case v := <-hold:
		return v, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Requests returns the recorded requests.
func (a *ScriptedApprover) Requests() []ports.ApprovalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ports.ApprovalRequest(nil), a.requests...)
}

var _ ports.Approver = (*ScriptedApprover)(nil)
