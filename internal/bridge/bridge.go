// Package bridge is the protocol core: it owns the connection table, gates
// every connection behind device approval, dispatches client commands to
// the session manager and the host, and streams terminal and progress
// updates to approved clients.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/hub"
	"github.com/brianly1003/ideremote/internal/progress"
	"github.com/brianly1003/ideremote/internal/runs"
	"github.com/brianly1003/ideremote/internal/security"
	"github.com/brianly1003/ideremote/internal/server/common"
	"github.com/brianly1003/ideremote/internal/server/websocket"
	"github.com/brianly1003/ideremote/internal/session"
	"github.com/brianly1003/ideremote/internal/sync"
)

// Defaults for Config fields left zero.
const (
	DefaultTerminalInterval = time.Second
	DefaultProgressInterval = time.Second
	DefaultApprovalTimeout  = 2 * time.Minute
	DefaultSnapshotLines    = 1000

	unknownDeviceName = "Unknown device"
)

// Config tunes the bridge.
type Config struct {
	// TerminalInterval is the period of the terminal diff loop.
	TerminalInterval time.Duration

	// ProgressInterval is the period of the progress diff loop.
	ProgressInterval time.Duration

	// SnapshotLines trims streamed snapshots to their last n lines.
	// Negative disables trimming.
	SnapshotLines int

	// ApprovalTimeout bounds one approval prompt.
	ApprovalTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TerminalInterval <= 0 {
		c.TerminalInterval = DefaultTerminalInterval
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.SnapshotLines == 0 {
		c.SnapshotLines = DefaultSnapshotLines
	}
	if c.SnapshotLines < 0 {
		c.SnapshotLines = 0
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = DefaultApprovalTimeout
	}
}

// DeviceRegistry persists approved devices.
type DeviceRegistry interface {
	IsDeviceApproved(deviceID string) bool
	ApproveDevice(deviceID, name string) error
}

// Deps are the collaborators of a Bridge. Host may be nil, in which case
// terminals are in-memory and build/run commands fail.
type Deps struct {
	Host      ports.Host
	Sessions  *session.Manager
	Devices   DeviceRegistry
	Approvals *security.ApprovalQueue
	Approver  ports.Approver
	Hub       ports.Broadcaster
	Logger    *slog.Logger
}

// Bridge implements common.ConnectionHandler.
type Bridge struct {
	cfg Config

	host      ports.Host
	sessions  *session.Manager
	devices   DeviceRegistry
	approvals *security.ApprovalQueue
	approver  ports.Approver
	hub       ports.Broadcaster
	logger    *slog.Logger

	tracker *progress.Tracker
	mirror  *runs.Mirror

	conns *ConnectionTable
	subs  *Subscriptions

	forceProgress chan struct{}
	unsubscribe   func()

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var _ common.ConnectionHandler = (*Bridge)(nil)

// New creates a Bridge. Start must be called to run the streaming loops.
func New(cfg Config, deps Deps) *Bridge {
	cfg.applyDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	approvals := deps.Approvals
	if approvals == nil {
		approvals = security.NewApprovalQueue(0)
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewManager(deps.Host, logger, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:           cfg,
		host:          deps.Host,
		sessions:      sessions,
		devices:       deps.Devices,
		approvals:     approvals,
		approver:      deps.Approver,
		hub:           deps.Hub,
		logger:        logger,
		tracker:       progress.NewTracker(),
		conns:         NewConnectionTable(),
		subs:          NewSubscriptions(),
		forceProgress: make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
	b.mirror = runs.NewMirror(b.publish)
	b.mirror.SetDefaultProject(b.defaultProjectName)
	b.sessions.OnRemove(b.onSessionRemoved)
	return b
}

// Start subscribes to host events and starts the streaming loops.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	if b.ctx.Err() != nil {
		return errors.New("bridge already stopped")
	}
	b.running = true

	if b.host != nil {
		b.unsubscribe = b.host.Subscribe(&hostListener{b: b})
	}

	b.wg.Add(2)
	go b.terminalLoop()
	go b.progressLoop()

	b.logger.Info("bridge started",
		"terminal_interval", b.cfg.TerminalInterval,
		"progress_interval", b.cfg.ProgressInterval)
	return nil
}

// Stop stops the loops, detaches from the host and closes every session.
func (b *Bridge) Stop() {
	b.mu.Lock()
	wasRunning := b.running
	b.running = false
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	// Cancelled under mu so requestApproval never adds to wg after Wait
	// has started.
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	if unsubscribe != nil {
		unsubscribe()
	}
	b.sessions.CloseAll()

	if wasRunning {
		b.logger.Info("bridge stopped")
	}
}

// Tracker returns the progress tracker fed by host task events.
func (b *Bridge) Tracker() *progress.Tracker { return b.tracker }

// Sessions returns the session manager.
func (b *Bridge) Sessions() *session.Manager { return b.sessions }

// ConnectionCount returns the number of live connections.
func (b *Bridge) ConnectionCount() int { return b.conns.Len() }

// OnConnect registers the connection and acknowledges it.
func (b *Bridge) OnConnect(c common.Conn) {
	st := b.conns.Add(c)
	if b.hub != nil {
		b.hub.Subscribe(hub.NewFilteredSubscriber(websocket.NewConnSubscriber(c), func(events.Event) bool {
			return st.Approved()
		}))
	}
	b.logger.Debug("connection registered", "conn_id", c.ID(), "remote_addr", c.RemoteAddr())
	b.send(st, events.NewHelloAck(c.ID()))
}

// OnDisconnect forgets the connection. Pending approval prompts keep
// running; their outcome is still recorded for the device.
func (b *Bridge) OnDisconnect(c common.Conn) {
	if b.hub != nil {
		b.hub.Unsubscribe(c.ID())
	}
	b.subs.RemoveConn(c.ID())
	b.conns.Remove(c.ID())
	b.logger.Debug("connection removed", "conn_id", c.ID())
}

func (b *Bridge) send(st *ConnState, ev events.Event) bool {
	if err := st.conn.Send(ev); err != nil {
		b.logger.Debug("send failed",
			"conn_id", st.ID(),
			"type", string(ev.Type()),
			"error", err)
		return false
	}
	return true
}

func (b *Bridge) publish(ev events.Event) {
	if b.hub != nil {
		b.hub.Publish(ev)
	}
}

func (b *Bridge) defaultProjectName() string {
	if b.host == nil {
		return ""
	}
	if projects := b.host.Projects(); len(projects) > 0 {
		return projects[0].Name
	}
	return ""
}

func (b *Bridge) onSessionRemoved(id string, reason session.RemoveReason) {
	b.subs.RemoveSession(id)
	if reason == session.RemovedByHost {
		b.publish(events.NewTerminalClosed(id))
	}
}

// handleHello records the device identity and runs the approval gate.
func (b *Bridge) handleHello(st *ConnState, deviceID, deviceName string) {
	if deviceID == "" {
		deviceID = st.ID()
	}
	if deviceName == "" {
		deviceName = unknownDeviceName
	}

	if st.Approved() {
		if id, _ := st.Device(); id == "" {
			st.setIdentity(deviceID, deviceName)
		}
		id, _ := st.Device()
		b.send(st, events.NewApprovalGranted(id))
		return
	}
	st.setIdentity(deviceID, deviceName)

	if b.devices != nil && b.devices.IsDeviceApproved(deviceID) {
		b.grant(st)
		return
	}

	st.setApprovalRequested(true)
	b.send(st, events.NewApprovalRequired(deviceID))
	b.requestApproval(deviceID, deviceName, st.conn.RemoteAddr())
}

// requestApproval prompts the host once per device, however many
// connections the device has open. Nothing is prompted once the bridge is
// stopping.
func (b *Bridge) requestApproval(deviceID, deviceName, remoteAddr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		b.logger.Debug("bridge stopping, approval not requested", "device_id", deviceID)
		return
	}

	req, created, err := b.approvals.EnsurePending(deviceID, deviceName, remoteAddr)
	if err != nil {
		b.logger.Warn("approval request failed", "device_id", deviceID, "error", err)
		return
	}
	if !created {
		return
	}

	b.logger.Info("approval requested",
		"device_id", deviceID,
		"device_name", deviceName,
		"remote_addr", remoteAddr,
		"request_id", req.RequestID)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.prompt(ports.ApprovalRequest{
			RequestID:  req.RequestID,
			DeviceID:   deviceID,
			DeviceName: deviceName,
			RemoteAddr: remoteAddr,
		})
	}()
}

func (b *Bridge) prompt(req ports.ApprovalRequest) {
	defer b.approvals.Resolve(req.DeviceID)

	if b.approver == nil {
		b.logger.Warn("no approver configured, denying device", "device_id", req.DeviceID)
		b.deny(req.DeviceID)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.ApprovalTimeout)
	defer cancel()

	ok, err := b.approver.RequestApproval(ctx, req)
	if err != nil {
		b.logger.Warn("approval prompt ended without a decision",
			"device_id", req.DeviceID,
			"error", err)
		for _, st := range b.conns.ByDevice(req.DeviceID) {
			st.setApprovalRequested(false)
		}
		return
	}
	if !ok {
		b.logger.Info("device denied", "device_id", req.DeviceID)
		b.deny(req.DeviceID)
		return
	}

	if b.devices != nil {
		if err := b.devices.ApproveDevice(req.DeviceID, req.DeviceName); err != nil {
			b.logger.Error("persisting approved device failed",
				"device_id", req.DeviceID,
				"error", err)
			for _, st := range b.conns.ByDevice(req.DeviceID) {
				st.setApprovalRequested(false)
			}
			return
		}
	}
	b.logger.Info("device approved", "device_id", req.DeviceID, "device_name", req.DeviceName)

	for _, st := range b.conns.ByDevice(req.DeviceID) {
		b.grant(st)
	}
}

// grant approves st and sends the initial state.
func (b *Bridge) grant(st *ConnState) {
	if !st.approve() {
		return
	}
	deviceID, _ := st.Device()
	b.send(st, events.NewApprovalGranted(deviceID))
	b.send(st, b.runConfigurationsMessage())
	b.send(st, events.NewIDEProgress(b.tracker.Snapshot()))
}

func (b *Bridge) deny(deviceID string) {
	for _, st := range b.conns.ByDevice(deviceID) {
		if st.Approved() {
			continue
		}
		b.send(st, events.NewApprovalDenied(deviceID))
		st.conn.Close(common.ClosePolicyViolation, "approval denied")
	}
}

// gate answers a command from a connection that is not approved yet.
func (b *Bridge) gate(st *ConnState) {
	deviceID, _ := st.Device()
	if st.ApprovalRequested() {
		b.send(st, events.NewApprovalPending(deviceID))
		return
	}
	b.send(st, events.NewApprovalRequired(deviceID))
}
