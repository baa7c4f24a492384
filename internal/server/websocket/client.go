// Package websocket implements the WebSocket transport: the HTTP listener,
// the handshake token check and the per-connection read and write pumps.
//
// Each Client manages:
//   - A read loop that hands complete text frames to the ConnectionHandler
//   - A goroutine for writing outgoing messages (writePump)
//   - Automatic ping/pong for connection health monitoring
//   - Graceful shutdown handling
//
// Message Flow:
//   - Incoming: WebSocket → readPump → ConnectionHandler.OnMessage
//   - Outgoing: Client.Send() → SendBuffer → writePump → WebSocket
//
// Thread Safety:
//   - Send() is safe to call from any goroutine
//   - Close() is safe to call multiple times
package websocket

import (
	"sync"
	"time"

	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/server/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client represents a WebSocket client connection.
//
// Lifecycle:
//  1. Create with newClient()
//  2. run() starts the write pump and blocks in the read loop
//  3. Send messages with Send()
//  4. Close with Close() or wait for the peer to go away
type Client struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	buf        *common.SendBuffer
	handler    common.ConnectionHandler

	mu          sync.Mutex
	closeCode   int
	closeReason string

	writerDone chan struct{}
}

func newClient(conn *websocket.Conn, remoteAddr string, handler common.ConnectionHandler) *Client {
	id := uuid.New().String()
	return &Client{
		id:         id,
		conn:       conn,
		remoteAddr: remoteAddr,
		buf:        common.NewSendBuffer(id, common.SendBufferSize, common.SendBufferBytes),
		handler:    handler,
		closeCode:  websocket.CloseNormalClosure,
		writerDone: make(chan struct{}),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client address.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Send serializes event and queues it.
func (c *Client) Send(event events.Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return err
	}
	return c.buf.Send(data)
}

// Close asks the write pump to flush queued messages, send a close frame
// with code and reason, and close the socket.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	if c.buf.IsClosed() {
		c.mu.Unlock()
		return
	}
	c.closeCode = code
	c.closeReason = reason
	c.mu.Unlock()

	c.buf.Close()
}

// Done returns a channel that's closed when Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.buf.Done()
}

// forceClose closes the socket without a close handshake.
func (c *Client) forceClose() {
	c.buf.Close()
	_ = c.conn.Close()
}

// run starts the write pump and blocks in the read loop until the
// connection ends. Cleanup runs exactly once, here.
func (c *Client) run() {
	go c.writePump()

	defer func() {
		if c.handler != nil {
			c.handler.OnDisconnect(c)
		}
		c.Close(websocket.CloseNormalClosure, "")
		<-c.writerDone
	}()

	c.readPump()
}

// readPump pumps messages from the WebSocket connection to the handler.
func (c *Client) readPump() {
	c.conn.SetReadLimit(common.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(common.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(common.PongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("websocket read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if c.handler != nil {
			c.handler.OnMessage(c, message)
		}
	}
}

// writePump pumps messages from the send buffer to the WebSocket connection.
// Each message is sent as a separate WebSocket frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(common.PingPeriod)
	defer func() {
		ticker.Stop()
		c.mu.Lock()
		code, reason := c.closeCode, c.closeReason
		c.mu.Unlock()
		// Close frame with a deadline so a laggy peer can't block shutdown.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(common.WriteWait))
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.buf.Done():
			c.flush()
			return

		case message := <-c.buf.Channel():
			if err := c.write(message); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(common.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ping error")
				return
			}
		}
	}
}

// flush writes whatever is still queued.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.buf.Channel():
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	c.buf.Release(len(message))
	_ = c.conn.SetWriteDeadline(time.Now().Add(common.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

var _ common.Conn = (*Client)(nil)
