// Package session manages the terminal sessions exposed to remote clients.
package session

import (
	"strings"
	"time"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/sync"
	"github.com/brianly1003/ideremote/internal/terminal"
)

// Backend is the terminal behind a session.
type Backend interface {
	SendInput(data string) error
	Snapshot() (terminal.Snapshot, error)
	Close() error
	IsDisposed() bool
}

// Session is one terminal session known to the manager.
type Session struct {
	ID               string
	Name             string
	WorkingDirectory string
	CreatedAt        time.Time

	// identity is the host terminal identity for live sessions.
	identity string
	backend  Backend
}

// Info returns the wire description of the session.
func (s *Session) Info() events.SessionInfo {
	return events.SessionInfo{
		ID:               s.ID,
		Name:             s.Name,
		WorkingDirectory: s.WorkingDirectory,
		CreatedAt:        s.CreatedAt.UnixMilli(),
	}
}

// Backend returns the session backend.
func (s *Session) Backend() Backend {
	return s.backend
}

// liveBackend drives a terminal owned by the host.
type liveBackend struct {
	handle ports.TerminalHandle
}

func newLiveBackend(h ports.TerminalHandle) *liveBackend {
	return &liveBackend{handle: h}
}

// SendInput types data into the host terminal. Line breaks become the host's
// submit action so that input composed over several writes behaves like
// interactive typing.
func (b *liveBackend) SendInput(data string) error {
	if b.handle.Disposed() {
		return domain.ErrSessionDisposed
	}
	for _, part := range splitLines(data) {
		if part.text != "" {
			if err := b.handle.SendText(part.text); err != nil {
				return err
			}
		}
		if part.submit {
			if err := b.handle.SubmitLine(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *liveBackend) Snapshot() (terminal.Snapshot, error) {
	if b.handle.Disposed() {
		return terminal.Snapshot{}, domain.ErrSessionDisposed
	}
	return b.handle.Snapshot()
}

func (b *liveBackend) Close() error {
	if b.handle.Disposed() {
		return nil
	}
	return b.handle.Close()
}

func (b *liveBackend) IsDisposed() bool {
	return b.handle.Disposed()
}

type inputPart struct {
	text   string
	submit bool
}

// splitLines cuts data at line breaks. "\r\n", "\n" and "\r" all submit.
func splitLines(data string) []inputPart {
	var parts []inputPart
	for data != "" {
		i := strings.IndexAny(data, "\r\n")
		if i < 0 {
			parts = append(parts, inputPart{text: data})
			break
		}
		parts = append(parts, inputPart{text: data[:i], submit: true})
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			i++
		}
		data = data[i+1:]
	}
	return parts
}

// memoryBackend is a self-contained terminal that echoes its input. It stands
// in for a host terminal when there is no host.
type memoryBackend struct {
	mu     sync.Mutex
	screen *terminal.Screen
	closed bool
}

func newMemoryBackend(scrollback int) *memoryBackend {
	return &memoryBackend{
		screen: terminal.NewScreen(terminal.DefaultCols, terminal.DefaultRows, scrollback),
	}
}

func (b *memoryBackend) SendInput(data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return domain.ErrSessionDisposed
	}
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\n", "\r\n")
	_, err := b.screen.WriteString(data)
	return err
}

func (b *memoryBackend) Snapshot() (terminal.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return terminal.Snapshot{}, domain.ErrSessionDisposed
	}
	return b.screen.Snapshot(), nil
}

func (b *memoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *memoryBackend) IsDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
