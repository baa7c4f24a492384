package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/ideremote/internal/config"
	"github.com/brianly1003/ideremote/internal/pairing"
	"github.com/brianly1003/ideremote/internal/security"
	"github.com/brianly1003/ideremote/internal/testutil"
	"github.com/gorilla/websocket"
)

const readTimeout = 5 * time.Second

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeoutMS: 1000},
		Security: config.SecurityConfig{
			DataDir:             t.TempDir(),
			ApprovalMode:        config.ApprovalModeAuto,
			ApprovalTimeoutSecs: 5,
		},
		Streaming: config.StreamingConfig{TerminalIntervalMS: 50, ProgressIntervalMS: 50, SnapshotMaxLines: 100},
		Host:      config.HostConfig{Mode: config.HostModeMemory, TerminalCreateTimeoutMS: 1000, ScrollbackLines: 200},
		Logging:   config.LoggingConfig{Level: "info", Format: "console"},
	}
}

// startApp starts an in-memory app and returns it with its pairing token.
func startApp(t *testing.T, opts ...Option) (*App, string) {
	t.Helper()

	store, err := security.OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	opts = append([]Option{
		WithStore(store),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	a, err := New(testConfig(t), "test", opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Stop() })

	token, err := store.Token()
	if err != nil {
		t.Fatal(err)
	}
	return a, token
}

func wsURL(a *App, token string) string {
	return "ws://" + a.Addr() + "/ws?token=" + url.QueryEscape(token)
}

func TestNew(t *testing.T) {
	if _, err := New(nil, "1.0.0"); err == nil {
		t.Error("New(nil) should fail")
	}

	cfg := testConfig(t)
	app, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if app.cfg != cfg {
		t.Error("config not set correctly")
	}
	if app.version != "1.0.0" {
		t.Errorf("version = %s, want 1.0.0", app.version)
	}
	if app.hub == nil {
		t.Error("hub should be initialized")
	}
	if app.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if app.running {
		t.Error("app should not be running initially")
	}
	if app.UptimeSeconds() != 0 {
		t.Error("UptimeSeconds() should be 0 before Start")
	}
	if app.Addr() != "" {
		t.Error("Addr() should be empty before Start")
	}
}

func TestApp_StartTwice(t *testing.T) {
	a, _ := startApp(t)
	if err := a.Start(t.Context()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestApp_StopIsIdempotent(t *testing.T) {
	a, _ := startApp(t)
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if a.Addr() != "" {
		t.Error("Addr() should be empty after Stop")
	}
}

func TestApp_EndToEnd(t *testing.T) {
	a, token := startApp(t)
	c := testutil.DialWS(t, wsURL(a, token), nil)

	ack := c.ReadUntil("hello_ack", readTimeout)
	if ack["deviceId"] == "" {
		t.Errorf("hello_ack = %v, want connection id", ack)
	}

	c.Send(map[string]any{"type": "hello", "deviceId": "phone-1", "deviceName": "Pixel"})
	c.ReadUntil("approval_required", readTimeout)
	c.ReadUntil("approval_granted", readTimeout)

	if !a.Store().IsDeviceApproved("phone-1") {
		t.Error("approved device was not persisted")
	}

	c.Send(map[string]any{"type": "start_terminal", "name": "e2e"})
	started := c.ReadUntil("terminal_started", readTimeout)
	sess, _ := started["session"].(map[string]any)
	id, _ := sess["id"].(string)
	if id == "" || sess["name"] != "e2e" {
		t.Fatalf("terminal_started = %v", started)
	}

	c.Send(map[string]any{"type": "terminal_subscribe", "sessionId": id})
	c.ReadUntil("terminal_output", readTimeout)

	c.Send(map[string]any{"type": "terminal_input", "sessionId": id, "data": "echo MARK\n"})

	// The diff loop pushes the changed screen without another request.
	deadline := time.Now().Add(readTimeout)
	for {
		out := c.ReadUntil("terminal_output", time.Until(deadline))
		if s, _ := out["output"].(string); strings.Contains(s, "MARK") {
			break
		}
	}

	c.Send(map[string]any{"type": "list_sessions"})
	sessions := c.ReadUntil("sessions", readTimeout)
	if items, _ := sessions["items"].([]any); len(items) != 1 {
		t.Errorf("sessions = %v, want one item", sessions)
	}

	c.Send(map[string]any{"type": "close_terminal", "sessionId": id})
	closed := c.ReadUntil("terminal_closed", readTimeout)
	if closed["sessionId"] != id {
		t.Errorf("terminal_closed = %v", closed)
	}

	c.Send(map[string]any{"type": "close_terminal", "sessionId": id})
	terr := c.ReadUntil("terminal_error", readTimeout)
	if terr["message"] != "session not found" {
		t.Errorf("terminal_error = %v", terr)
	}
}

func TestApp_KnownDeviceOnReconnect(t *testing.T) {
	a, token := startApp(t)
	if err := a.Store().ApproveDevice("phone-2", "Tablet"); err != nil {
		t.Fatal(err)
	}

	c := testutil.DialWS(t, wsURL(a, token), nil)
	c.ReadUntil("hello_ack", readTimeout)
	c.Send(map[string]any{"type": "hello", "deviceId": "phone-2", "deviceName": "Tablet"})

	msg := c.Read(readTimeout)
	if msg["type"] != "approval_granted" {
		t.Errorf("first reply = %v, want approval_granted without a prompt", msg)
	}
}

func TestApp_DenyMode(t *testing.T) {
	store, err := security.OpenStore("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := testConfig(t)
	cfg.Security.ApprovalMode = config.ApprovalModeDeny
	a, err := New(cfg, "test", WithStore(store), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Stop() })

	token, _ := store.Token()
	c := testutil.DialWS(t, wsURL(a, token), nil)
	c.ReadUntil("hello_ack", readTimeout)
	c.Send(map[string]any{"type": "hello", "deviceId": "phone-3"})
	c.ReadUntil("approval_denied", readTimeout)

	if code := c.ReadClose(readTimeout); code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
	}
}

func TestApp_RejectsInvalidToken(t *testing.T) {
	a, _ := startApp(t)
	c := testutil.DialWS(t, wsURL(a, "wrong"), nil)

	msg := c.Read(readTimeout)
	if msg["type"] != "error" {
		t.Errorf("first message = %v, want error", msg)
	}
	if code := c.ReadClose(readTimeout); code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
	}
}

func TestApp_PairEndpoint(t *testing.T) {
	a, _ := startApp(t)

	resp, err := http.Get("http://" + a.Addr() + "/pair")
	if err != nil {
		t.Fatalf("GET /pair error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var info pairing.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Token != "" {
		t.Error("GET /pair must not expose the token")
	}
	if want := "ws://" + a.Addr() + "/ws"; info.WebSocket != want {
		t.Errorf("ws = %s, want %s", info.WebSocket, want)
	}
	if !info.TokenRequired {
		t.Error("tokenRequired should be true")
	}

	if qr := a.Pairing().Info(); qr.Token == "" || !strings.HasSuffix(qr.HTTP, a.Addr()[strings.LastIndex(a.Addr(), ":"):]) {
		t.Errorf("QR info = %+v, want token and bound port", qr)
	}
}

func TestApp_Banner(t *testing.T) {
	var out strings.Builder
	startApp(t, WithBanner(&out))

	text := out.String()
	if !strings.Contains(text, "ideremote ready") {
		t.Errorf("banner missing title:\n%s", text)
	}
	if !strings.Contains(text, "(in-memory terminals)") {
		t.Errorf("banner missing project line:\n%s", text)
	}
	if !strings.Contains(text, "Scan with the ideremote app") {
		t.Errorf("banner missing QR code:\n%s", text)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
