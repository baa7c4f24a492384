// Package local implements ports.Host for a plain developer machine: shell
// terminals on a PTY, run configurations from a file, and a build command.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/terminal"
)

// ErrNoBuildCommand is returned by Build when no build command is configured.
var ErrNoBuildCommand = errors.New("no build command configured")

// ErrBuildRunning is returned by Build while another build is in progress.
var ErrBuildRunning = errors.New("a build is already running")

// Options configures a Host.
type Options struct {
	// Projects are the open projects. Empty means the current directory.
	Projects []ports.Project

	// Shell is the program started in new terminals. Empty uses $SHELL.
	Shell string

	// BuildCommand is run through the shell by Build.
	BuildCommand string

	// RunConfigsFile is a YAML or JSONC file listing run configurations.
	RunConfigsFile string

	Cols, Rows int
	Scrollback int

	Logger *slog.Logger
}

// Host is the local ports.Host implementation.
type Host struct {
	opts     Options
	projects []ports.Project
	logger   *slog.Logger
	configs  *RunConfigStore

	mu        sync.Mutex
	terminals map[string]*ptyTerminal
	listeners map[int]ports.HostListener
	nextID    int
	building  bool

	ctx    context.Context
	cancel context.CancelFunc
	procs  sync.WaitGroup
}

var _ ports.Host = (*Host)(nil)

// New creates a local host. Run configurations are loaded once here; call
// Start to reload them when the file changes.
func New(opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	projects, err := resolveProjects(opts.Projects)
	if err != nil {
		return nil, err
	}
	if opts.Shell == "" {
		opts.Shell = defaultShell()
	}
	if opts.Cols <= 0 {
		opts.Cols = terminal.DefaultCols
	}
	if opts.Rows <= 0 {
		opts.Rows = terminal.DefaultRows
	}
	if opts.Scrollback <= 0 {
		opts.Scrollback = terminal.DefaultScrollback
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		opts:      opts,
		projects:  projects,
		logger:    logger,
		terminals: make(map[string]*ptyTerminal),
		listeners: make(map[int]ports.HostListener),
		ctx:       ctx,
		cancel:    cancel,
	}

	if opts.RunConfigsFile != "" {
		h.configs = NewRunConfigStore(opts.RunConfigsFile, logger)
		if err := h.configs.Load(); err != nil {
			cancel()
			return nil, err
		}
	}
	return h, nil
}

func resolveProjects(in []ports.Project) ([]ports.Project, error) {
	out := make([]ports.Project, 0, len(in))
	for _, p := range in {
		if p.Path == "" {
			continue
		}
		abs, err := filepath.Abs(p.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve project %q: %w", p.Path, err)
		}
		if p.Name == "" {
			p.Name = filepath.Base(abs)
		}
		p.Path = abs
		out = append(out, p)
	}
	if len(out) > 0 {
		return out, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return []ports.Project{{Name: filepath.Base(cwd), Path: cwd}}, nil
}

// Start watches the run configuration file, if any.
func (h *Host) Start(ctx context.Context) error {
	if h.configs == nil {
		return nil
	}
	return h.configs.Start(ctx)
}

// Close stops the watcher, kills running processes and closes every
// terminal.
func (h *Host) Close() error {
	if h.configs != nil {
		_ = h.configs.Stop()
	}
	h.cancel()

	h.mu.Lock()
	terms := make([]*ptyTerminal, 0, len(h.terminals))
	for _, t := range h.terminals {
		terms = append(terms, t)
	}
	h.mu.Unlock()

	for _, t := range terms {
		_ = t.Close()
	}
	h.procs.Wait()
	return nil
}

// Projects returns the configured projects.
func (h *Host) Projects() []ports.Project {
	return append([]ports.Project(nil), h.projects...)
}

// CreateTerminal starts the shell on a new PTY in workDir.
func (h *Host) CreateTerminal(ctx context.Context, project ports.Project, name, workDir string) (ports.TerminalHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workDir == "" {
		workDir = project.Path
	}

	t, err := startTerminal(terminalSpec{
		shell:      h.opts.Shell,
		name:       name,
		workDir:    workDir,
		cols:       h.opts.Cols,
		rows:       h.opts.Rows,
		scrollback: h.opts.Scrollback,
	}, h.logger)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.terminals[t.Identity()] = t
	h.mu.Unlock()

	t.OnDispose(func() {
		h.mu.Lock()
		delete(h.terminals, t.Identity())
		h.mu.Unlock()
	})

	h.logger.Info("Terminal started", "identity", t.Identity(), "shell", h.opts.Shell, "dir", workDir)
	return t, nil
}

// Terminals returns the terminals that are still running.
func (h *Host) Terminals() []ports.TerminalHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ports.TerminalHandle, 0, len(h.terminals))
	for _, t := range h.terminals {
		if !t.Disposed() {
			out = append(out, t)
		}
	}
	return out
}

// RunConfigurations returns the configurations from the run config file.
func (h *Host) RunConfigurations(ctx context.Context) ([]ports.RunConfiguration, error) {
	if h.configs == nil {
		return nil, nil
	}
	return h.configs.List(), nil
}

// Subscribe registers a listener for task, process and build events.
func (h *Host) Subscribe(l ports.HostListener) func() {
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

func (h *Host) emit(fn func(ports.HostListener)) {
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

func (h *Host) projectPath(name string) string {
	for _, p := range h.projects {
		if p.Name == name {
			return p.Path
		}
	}
	return h.projects[0].Path
}
