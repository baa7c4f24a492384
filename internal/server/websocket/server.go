package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/security"
	"github.com/brianly1003/ideremote/internal/server/common"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TokenHeader is an alternative to the token query parameter.
const TokenHeader = "X-IDERemote-Token"

// LivenessText is the body of GET /.
const LivenessText = "ideremote is running"

// Options configures the server.
type Options struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	TrustedProxies  []*net.IPNet
	ShutdownTimeout time.Duration
}

// PairInfoFunc returns the body of GET /pair for a request.
type PairInfoFunc func(r *http.Request) any

// Server is the WebSocket server.
type Server struct {
	opts     Options
	tokens   common.TokenValidator
	handler  common.ConnectionHandler
	pairInfo PairInfoFunc
	upgrader websocket.Upgrader
	router   *mux.Router

	server   *http.Server
	listener net.Listener

	mu       sync.RWMutex
	clients  map[string]*Client
	stopping bool
	wg       sync.WaitGroup
}

// NewServer creates a new WebSocket server.
func NewServer(opts Options, tokens common.TokenValidator, handler common.ConnectionHandler) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = common.DefaultShutdownTimeout
	}
	s := &Server{
		opts:    opts,
		tokens:  tokens,
		handler: handler,
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     security.NewOriginChecker(opts.AllowedOrigins).CheckOrigin,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/pair", s.handlePair).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	s.router = r

	s.server = &http.Server{
		Handler: r,
		// Note: Do NOT set ReadTimeout/WriteTimeout for WebSocket server.
		// gorilla/websocket handles its own deadlines in the pumps.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetPairInfo sets the GET /pair provider.
func (s *Server) SetPairInfo(fn PairInfoFunc) {
	s.pairInfo = fn
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// Port 0 picks a free port, see Addr.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	log.Info().Str("addr", ln.Addr().String()).Msg("WebSocket server starting")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("WebSocket server error")
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every connection gracefully, bounded by the shutdown timeout
// and ctx, then forces whatever is left.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("WebSocket server stopping")

	s.mu.Lock()
	s.stopping = true
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	graceCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	if !s.waitConnections(graceCtx) {
		log.Warn().Msg("graceful close timed out, forcing connections closed")
		s.mu.RLock()
		for _, c := range s.clients {
			c.forceClose()
		}
		s.mu.RUnlock()

		forceCtx, forceCancel := context.WithTimeout(context.Background(), time.Second)
		s.waitConnections(forceCtx)
		forceCancel()
	}

	err := s.server.Shutdown(graceCtx)
	if err != nil {
		_ = s.server.Close()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) waitConnections(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(LivenessText))
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.pairInfo == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.pairInfo(r)); err != nil {
		log.Warn().Err(err).Msg("failed to write pairing info")
	}
}

// tokenFromRequest extracts the pairing token from the query string or
// headers.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	return r.Header.Get(TokenHeader)
}

// handleWebSocket upgrades the request and runs the connection until it
// ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	remoteAddr := security.ClientAddr(r, s.opts.TrustedProxies)

	if s.tokens == nil || !s.tokens.IsTokenValid(tokenFromRequest(r)) {
		log.Warn().Str("remote_addr", remoteAddr).Msg("rejected connection with invalid pairing token")
		reject(conn)
		return
	}

	client := newClient(conn, remoteAddr, s.handler)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	s.clients[client.ID()] = client
	s.wg.Add(1)
	s.mu.Unlock()

	log.Info().
		Str("conn_id", client.ID()).
		Str("remote_addr", remoteAddr).
		Msg("client connected")

	defer func() {
		s.removeClient(client.ID())
		s.wg.Done()
	}()

	if s.handler != nil {
		s.handler.OnConnect(client)
	}
	client.run()
}

// reject tells the peer its token is invalid and closes with a policy
// violation. Nothing else is recorded for the connection.
func reject(conn *websocket.Conn) {
	deadline := time.Now().Add(common.WriteWait)
	if data, err := events.NewError(domain.ErrCodeInvalidToken, domain.ErrInvalidToken.Error(), "").ToJSON(); err == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
		deadline)
	_ = conn.Close()
}

// removeClient removes a client from the server.
func (s *Server) removeClient(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	log.Info().Str("conn_id", id).Msg("client disconnected")
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// GetClient returns a client by ID.
func (s *Server) GetClient(id string) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[id]
}
