// Package app orchestrates all components of ideremote.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brianly1003/ideremote/internal/bridge"
	"github.com/brianly1003/ideremote/internal/config"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/brianly1003/ideremote/internal/host/local"
	"github.com/brianly1003/ideremote/internal/hub"
	"github.com/brianly1003/ideremote/internal/pairing"
	"github.com/brianly1003/ideremote/internal/security"
	"github.com/brianly1003/ideremote/internal/server/websocket"
	"github.com/brianly1003/ideremote/internal/session"
	isync "github.com/brianly1003/ideremote/internal/sync"
	"github.com/rs/zerolog/log"
)

// Option configures an App.
type Option func(*App)

// WithApprover replaces the approver chosen from security.approval_mode.
func WithApprover(a ports.Approver) Option {
	return func(app *App) { app.approver = a }
}

// WithLogger sets the slog logger used by the session registry, the bridge
// and the local host.
func WithLogger(l *slog.Logger) Option {
	return func(app *App) { app.logger = l }
}

// WithBanner prints connection info and the pairing QR code to w on start.
func WithBanner(w io.Writer) Option {
	return func(app *App) { app.banner = w }
}

// WithStore uses an already opened store instead of opening one in
// security.data_dir. The caller keeps ownership.
func WithStore(s *security.Store) Option {
	return func(app *App) {
		app.store = s
		app.ownsStore = false
	}
}

// App is the main application struct that orchestrates all components.
type App struct {
	cfg     *config.Config
	version string

	logger    *slog.Logger
	banner    io.Writer
	approver  ports.Approver
	store     *security.Store
	ownsStore bool

	// Core components
	hub      *hub.Hub
	trace    *hub.TraceSubscriber
	host     *local.Host
	sessions *session.Manager
	bridge   *bridge.Bridge
	server   *websocket.Server
	pairing  *pairing.Generator

	startTime time.Time

	// Lifecycle
	mu      sync.RWMutex
	running bool
}

// New creates a new App instance.
func New(cfg *config.Config, version string, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	a := &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		ownsStore: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Run starts the application and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.Stop()
}

// Start starts every component. It returns once the server is listening.
func (a *App) Start(ctx context.Context) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("application is already running")
	}
	a.startTime = time.Now()
	if isync.Detecting() {
		log.Warn().Msg("deadlock detection enabled")
	}

	// Undo whatever did start if a later step fails.
	defer func() {
		if err != nil {
			a.teardown()
		}
	}()

	if a.store == nil {
		path := security.DefaultStorePath(a.cfg.Security.DataDir)
		a.store, err = security.OpenStore(path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		log.Debug().Str("path", path).Msg("security store opened")
	}
	token, err := a.store.Token()
	if err != nil {
		return fmt.Errorf("failed to load pairing token: %w", err)
	}

	approver := a.approver
	if approver == nil {
		var fellBack bool
		approver, fellBack, err = local.NewApprover(a.cfg.Security.ApprovalMode)
		if err != nil {
			return err
		}
		if fellBack {
			log.Warn().Msg("stdin is not a terminal: new devices will be denied, approve them with 'ideremote devices approve'")
		}
	}

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start broadcast hub: %w", err)
	}
	a.trace = hub.NewTraceSubscriber("internal-logger", log.Logger)
	a.hub.Subscribe(a.trace)

	var host ports.Host
	if a.cfg.Host.Mode == config.HostModeLocal {
		a.host, err = local.New(local.Options{
			Projects:       projects(a.cfg.Host.Projects),
			Shell:          a.cfg.Host.Shell,
			BuildCommand:   a.cfg.Host.BuildCommand,
			RunConfigsFile: a.cfg.Host.RunConfigsFile,
			Scrollback:     a.cfg.Host.ScrollbackLines,
			Logger:         a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create local host: %w", err)
		}
		if err := a.host.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to watch run configurations")
		}
		host = a.host
	} else {
		log.Info().Msg("running without an IDE host: terminals are in-memory")
	}

	a.sessions = session.NewManager(host, a.logger, a.cfg.Host.TerminalCreateTimeout())
	a.sessions.SetScrollback(a.cfg.Host.ScrollbackLines)

	a.bridge = bridge.New(bridge.Config{
		TerminalInterval: a.cfg.Streaming.TerminalInterval(),
		ProgressInterval: a.cfg.Streaming.ProgressInterval(),
		SnapshotLines:    a.cfg.Streaming.SnapshotMaxLines,
		ApprovalTimeout:  a.cfg.Security.ApprovalTimeout(),
	}, bridge.Deps{
		Host:      host,
		Sessions:  a.sessions,
		Devices:   a.store,
		Approvals: security.NewApprovalQueue(a.cfg.Security.ApprovalTimeout()),
		Approver:  approver,
		Hub:       a.hub,
		Logger:    a.logger,
	})
	if err := a.bridge.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	trusted, err := security.ParseTrustedProxies(a.cfg.Security.TrustedProxies)
	if err != nil {
		return err
	}

	a.pairing = pairing.NewGenerator(a.cfg.Server.Host, a.cfg.Server.Port, a.projectName(host))
	a.pairing.SetToken(token)
	a.pairing.SetTrustedProxies(trusted)
	if a.cfg.Server.ExternalURL != "" {
		a.pairing.SetExternalURL(a.cfg.Server.ExternalURL)
		log.Info().Str("external_url", a.cfg.Server.ExternalURL).Msg("using external URL for pairing")
	}

	a.server = websocket.NewServer(websocket.Options{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		AllowedOrigins:  a.cfg.Server.AllowedOrigins,
		TrustedProxies:  trusted,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout(),
	}, a.store, a.bridge)
	gen := a.pairing
	a.server.SetPairInfo(func(r *http.Request) any { return gen.ForRequest(r) })
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	a.pairing.SetPort(a.port())

	a.running = true

	log.Info().
		Str("addr", a.server.Addr()).
		Str("host_mode", a.cfg.Host.Mode).
		Str("approval_mode", a.cfg.Security.ApprovalMode).
		Str("version", a.version).
		Msg("ideremote started")

	if a.banner != nil {
		a.printConnectionInfo(a.banner)
	}
	return nil
}

// Stop performs graceful shutdown of all components.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Msg("shutting down...")
	a.teardown()
	return nil
}

// teardown stops whatever was started, in reverse order. Callers hold mu.
func (a *App) teardown() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout()+time.Second)
		if err := a.server.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("error stopping WebSocket server")
		}
		cancel()
		a.server = nil
	}

	if a.bridge != nil {
		a.bridge.Stop()
		a.bridge = nil
	}

	if a.host != nil {
		if err := a.host.Close(); err != nil {
			log.Error().Err(err).Msg("error closing local host")
		}
		a.host = nil
	}

	if a.trace != nil {
		a.trace.LogTotals()
		a.trace = nil
	}
	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping broadcast hub")
	}

	if a.store != nil && a.ownsStore {
		if err := a.store.Close(); err != nil {
			log.Error().Err(err).Msg("error closing security store")
		}
		a.store = nil
	}
}

// Addr returns the address the server listens on.
func (a *App) Addr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Pairing returns the pairing generator once started.
func (a *App) Pairing() *pairing.Generator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pairing
}

// Store returns the security store once started.
func (a *App) Store() *security.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// UptimeSeconds returns the uptime in seconds.
func (a *App) UptimeSeconds() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return 0
	}
	return int64(time.Since(a.startTime).Seconds())
}

// port returns the bound port, which differs from the configured one when
// that was 0.
func (a *App) port() int {
	_, p, err := net.SplitHostPort(a.server.Addr())
	if err != nil {
		return a.cfg.Server.Port
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return a.cfg.Server.Port
	}
	return n
}

func (a *App) projectName(host ports.Host) string {
	if host == nil {
		return ""
	}
	if ps := host.Projects(); len(ps) > 0 {
		return ps[0].Name
	}
	return ""
}

func projects(in []config.ProjectConfig) []ports.Project {
	out := make([]ports.Project, 0, len(in))
	for _, p := range in {
		out = append(out, ports.Project{Name: p.Name, Path: p.Path})
	}
	return out
}
