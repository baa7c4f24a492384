package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/sync"
	"github.com/brianly1003/ideremote/internal/terminal"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DefaultCreateTimeout bounds how long the host may take to create a
// terminal.
const DefaultCreateTimeout = 10 * time.Second

const (
	defaultName     = "Remote"
	adoptedIDPrefix = "adopted-"
)

// RemoveReason tells observers why a session left the manager.
type RemoveReason int

const (
	// RemovedByClose means a client or the server closed the session.
	RemovedByClose RemoveReason = iota
	// RemovedByHost means the host disposed the underlying terminal.
	RemovedByHost
)

// RemoveFunc observes session removal.
type RemoveFunc func(id string, reason RemoveReason)

// Manager tracks terminal sessions. With a host, sessions are bound to host
// terminals and reconciled against the host on every listing. Without one,
// sessions are in-memory echo terminals.
type Manager struct {
	host          ports.Host
	logger        *slog.Logger
	createTimeout time.Duration
	scrollback    int

	sessions  map[string]*Session
	observers []RemoveFunc
	counter   int
	mu        sync.RWMutex

	now func() time.Time
}

// NewManager creates a session manager. host may be nil.
func NewManager(host ports.Host, logger *slog.Logger, createTimeout time.Duration) *Manager {
	if createTimeout <= 0 {
		createTimeout = DefaultCreateTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		host:          host,
		logger:        logger,
		createTimeout: createTimeout,
		scrollback:    terminal.DefaultScrollback,
		sessions:      make(map[string]*Session),
		now:           time.Now,
	}
}

// SetScrollback sets the scrollback of in-memory sessions created later.
func (m *Manager) SetScrollback(lines int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lines > 0 {
		m.scrollback = lines
	}
}

// OnRemove registers fn to be called after a session is removed.
func (m *Manager) OnRemove(fn RemoveFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Create creates a new session. Empty name and workDir are derived.
func (m *Manager) Create(ctx context.Context, name, workDir string) (*Session, error) {
	name = strings.TrimSpace(name)
	workDir = strings.TrimSpace(workDir)

	if m.host == nil {
		return m.createMemory(name, workDir), nil
	}

	projects := m.host.Projects()
	if len(projects) == 0 {
		return nil, domain.ErrNoProject
	}
	project := projects[0]

	if name == "" {
		name = m.nextName()
	}
	if workDir == "" {
		workDir = project.Path
	}

	handle, err := m.createTerminal(ctx, project, name, workDir)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:               uuid.New().String(),
		Name:             name,
		WorkingDirectory: workDir,
		CreatedAt:        m.now(),
		identity:         handle.Identity(),
		backend:          newLiveBackend(handle),
	}

	// A listing that ran while the host was creating the terminal has
	// already adopted it; that entry stands for the new terminal.
	m.mu.Lock()
	if existing := m.byIdentityLocked(s.identity); existing != nil {
		m.mu.Unlock()
		m.logger.Info("Terminal session created", "session_id", existing.ID, "name", existing.Name, "project", project.Name, "adopted", true)
		return existing, nil
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	// Registered after add so an already disposed handle removes the entry
	// straight away.
	handle.OnDispose(func() { m.remove(s.ID, RemovedByHost) })

	m.logger.Info("Terminal session created", "session_id", s.ID, "name", s.Name, "project", project.Name)
	return s, nil
}

// createTerminal asks the host for a terminal, bounded by createTimeout. A
// terminal that arrives after the deadline is closed.
func (m *Manager) createTerminal(ctx context.Context, project ports.Project, name, workDir string) (ports.TerminalHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.createTimeout)
	defer cancel()

	type result struct {
		handle ports.TerminalHandle
		err    error
	}
	done := make(chan result, 1)
	go func() {
		h, err := m.host.CreateTerminal(ctx, project, name, workDir)
		done <- result{h, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, domain.NewHostError("create terminal", r.err)
		}
		if r.handle == nil {
			return nil, domain.NewHostError("create terminal", fmt.Errorf("host returned no terminal"))
		}
		return r.handle, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.handle != nil {
				_ = r.handle.Close()
			}
		}()
		return nil, domain.NewHostError("create terminal", ctx.Err())
	}
}

func (m *Manager) createMemory(name, workDir string) *Session {
	if name == "" {
		name = m.nextName()
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	m.mu.RLock()
	scrollback := m.scrollback
	m.mu.RUnlock()

	s := &Session{
		ID:               uuid.New().String(),
		Name:             name,
		WorkingDirectory: workDir,
		CreatedAt:        m.now(),
		backend:          newMemoryBackend(scrollback),
	}
	m.add(s)
	m.logger.Debug("In-memory session created", "session_id", s.ID, "name", s.Name)
	return s
}

func (m *Manager) nextName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	if m.counter == 1 {
		return defaultName
	}
	return fmt.Sprintf("%s %d", defaultName, m.counter)
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// remove deletes the session and notifies observers. It reports whether the
// session was present.
func (m *Manager) remove(id string, reason RemoveReason) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	observers := slices.Clone(m.observers)
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	for _, fn := range observers {
		fn(id, reason)
	}
	if reason == RemovedByHost {
		m.logger.Info("Terminal session disposed by host", "session_id", id)
	}
	return s, true
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List reconciles with the host, prunes disposed sessions and returns the
// rest ordered by creation time.
func (m *Manager) List() []*Session {
	m.adopt()
	m.prune()

	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// adopt registers host terminals that were created outside this manager.
func (m *Manager) adopt() {
	if m.host == nil {
		return
	}

	for _, h := range m.host.Terminals() {
		if h == nil || h.Disposed() {
			continue
		}
		identity := h.Identity()
		id := adoptedID(identity)

		m.mu.Lock()
		if m.byIdentityLocked(identity) != nil {
			m.mu.Unlock()
			continue
		}
		s := &Session{
			ID:               id,
			Name:             h.Name(),
			WorkingDirectory: h.WorkingDirectory(),
			CreatedAt:        m.now(),
			identity:         identity,
			backend:          newLiveBackend(h),
		}
		m.sessions[id] = s
		m.mu.Unlock()

		h.OnDispose(func() { m.remove(id, RemovedByHost) })
		m.logger.Info("Adopted host terminal", "session_id", id, "name", s.Name)
	}
}

// byIdentityLocked returns the session bound to a host terminal identity.
func (m *Manager) byIdentityLocked(identity string) *Session {
	for _, s := range m.sessions {
		if s.identity != "" && s.identity == identity {
			return s
		}
	}
	return nil
}

// prune removes sessions whose backend is gone.
func (m *Manager) prune() {
	m.mu.RLock()
	var dead []string
	for id, s := range m.sessions {
		if s.backend.IsDisposed() {
			dead = append(dead, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range dead {
		m.remove(id, RemovedByHost)
	}
}

// adoptedID derives a stable session id from a host terminal identity.
func adoptedID(identity string) string {
	sum := blake3.Sum256([]byte(identity))
	return adoptedIDPrefix + hex.EncodeToString(sum[:8])
}

// lookup returns a live session. A disposed session is removed.
func (m *Manager) lookup(id string) (*Session, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.backend.IsDisposed() {
		m.remove(id, RemovedByHost)
		return nil, domain.ErrSessionDisposed
	}
	return s, nil
}

// SendInput routes data to the session backend.
func (m *Manager) SendInput(id, data string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := s.backend.SendInput(data); err != nil {
		return fmt.Errorf("send input to %s: %w", id, err)
	}
	return nil
}

// Snapshot captures the session and trims it to the last maxLines lines.
// maxLines <= 0 keeps everything.
func (m *Manager) Snapshot(id string, maxLines int) (terminal.Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return terminal.Snapshot{}, err
	}
	snap, err := s.backend.Snapshot()
	if err != nil {
		return terminal.Snapshot{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return snap.Normalize().Trim(maxLines), nil
}

// Close removes the session and closes its backend.
func (m *Manager) Close(id string) error {
	s, ok := m.remove(id, RemovedByClose)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := s.backend.Close(); err != nil {
		m.logger.Warn("Failed to close terminal", "session_id", id, "error", err)
	}
	m.logger.Info("Terminal session closed", "session_id", id)
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}
}
