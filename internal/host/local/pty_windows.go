//go:build windows

package local

import (
	"errors"
	"log/slog"
	"os"

	"github.com/brianly1003/ideremote/internal/terminal"
)

var errNoPTY = errors.New("terminals are not supported on Windows")

type terminalSpec struct {
	shell      string
	name       string
	workDir    string
	cols, rows int
	scrollback int
}

// ptyTerminal is never constructed on Windows.
type ptyTerminal struct{}

func startTerminal(terminalSpec, *slog.Logger) (*ptyTerminal, error) {
	return nil, errNoPTY
}

func (t *ptyTerminal) Identity() string                     { return "" }
func (t *ptyTerminal) Name() string                         { return "" }
func (t *ptyTerminal) WorkingDirectory() string             { return "" }
func (t *ptyTerminal) SendText(string) error                { return errNoPTY }
func (t *ptyTerminal) SubmitLine() error                    { return errNoPTY }
func (t *ptyTerminal) Snapshot() (terminal.Snapshot, error) { return terminal.Snapshot{}, errNoPTY }
func (t *ptyTerminal) Close() error                         { return nil }
func (t *ptyTerminal) OnDispose(fn func())                  { fn() }
func (t *ptyTerminal) Disposed() bool                       { return true }

func defaultShell() string {
	if sh := os.Getenv("COMSPEC"); sh != "" {
		return sh
	}
	return "cmd.exe"
}

func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}
