//go:build !windows

package local

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/brianly1003/ideremote/internal/terminal"
	"github.com/creack/pty"
	"github.com/google/uuid"
)

// killGrace is how long a shell gets to exit after SIGHUP.
const killGrace = 3 * time.Second

var errTerminalExited = errors.New("terminal has exited")

type terminalSpec struct {
	shell      string
	name       string
	workDir    string
	cols, rows int
	scrollback int
}

// ptyTerminal is a shell on a PTY whose output feeds a terminal.Screen.
type ptyTerminal struct {
	identity string
	name     string
	workDir  string
	logger   *slog.Logger

	cmd    *exec.Cmd
	ptmx   *os.File
	screen *terminal.Screen

	writeMu sync.Mutex

	mu        sync.Mutex
	disposed  bool
	onDispose []func()
	closeOnce sync.Once
}

func startTerminal(spec terminalSpec, logger *slog.Logger) (*ptyTerminal, error) {
	cmd := exec.Command(spec.shell)
	cmd.Dir = spec.workDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(spec.cols),
		Rows: uint16(spec.rows),
	})
	if err != nil {
		return nil, fmt.Errorf("pty start: %w", err)
	}

	t := &ptyTerminal{
		identity: "pty-" + uuid.New().String(),
		name:     spec.name,
		workDir:  spec.workDir,
		logger:   logger,
		cmd:      cmd,
		ptmx:     ptmx,
		screen:   terminal.NewScreen(spec.cols, spec.rows, spec.scrollback),
	}
	go t.readLoop()
	return t, nil
}

// readLoop copies PTY output into the screen until the shell exits, then
// disposes the terminal.
func (t *ptyTerminal) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			_, _ = t.screen.Write(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				t.logger.Debug("PTY read ended", "identity", t.identity, "error", err)
			}
			break
		}
	}

	exitCode := 0
	if state, err := t.cmd.Process.Wait(); err == nil && state != nil {
		exitCode = state.ExitCode()
	}
	_ = t.ptmx.Close()
	t.logger.Info("Terminal exited", "identity", t.identity, "exit_code", exitCode)
	t.dispose()
}

func (t *ptyTerminal) Identity() string         { return t.identity }
func (t *ptyTerminal) Name() string             { return t.name }
func (t *ptyTerminal) WorkingDirectory() string { return t.workDir }

func (t *ptyTerminal) write(s string) error {
	if t.Disposed() {
		return errTerminalExited
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := io.WriteString(t.ptmx, s)
	return err
}

// SendText writes text to the shell.
func (t *ptyTerminal) SendText(text string) error {
	return t.write(text)
}

// SubmitLine presses enter.
func (t *ptyTerminal) SubmitLine() error {
	return t.write("\r")
}

// Snapshot captures the screen.
func (t *ptyTerminal) Snapshot() (terminal.Snapshot, error) {
	return t.screen.Snapshot(), nil
}

// Close hangs up the shell and kills it if it is still around after
// killGrace.
func (t *ptyTerminal) Close() error {
	t.closeOnce.Do(func() {
		if t.Disposed() {
			return
		}
		_ = t.cmd.Process.Signal(syscall.SIGHUP)
		time.AfterFunc(killGrace, func() {
			if !t.Disposed() {
				_ = t.cmd.Process.Kill()
			}
		})
	})
	return nil
}

func (t *ptyTerminal) OnDispose(fn func()) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		fn()
		return
	}
	t.onDispose = append(t.onDispose, fn)
	t.mu.Unlock()
}

func (t *ptyTerminal) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

func (t *ptyTerminal) dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	fns := t.onDispose
	t.onDispose = nil
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func shellCommand(command string) (string, []string) {
	return "/bin/sh", []string{"-c", command}
}
