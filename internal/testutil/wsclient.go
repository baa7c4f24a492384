package testutil

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a protocol client for end-to-end tests.
type WSClient struct {
	t    *testing.T
	conn *websocket.Conn
}

// DialWS connects to url and registers a cleanup that closes the client.
func DialWS(t *testing.T, url string, header http.Header) *WSClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	c := &WSClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Send writes msg as a JSON text frame.
func (c *WSClient) Send(msg map[string]any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("WriteJSON(%v) error = %v", msg, err)
	}
}

// Read returns the next message, failing the test after timeout.
func (c *WSClient) Read(timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		c.t.Fatalf("invalid JSON %q: %v", data, err)
	}
	return msg
}

// ReadUntil skips messages until one of type msgType arrives and returns
// it.
func (c *WSClient) ReadUntil(msgType string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no %q message within %v", msgType, timeout)
		}
		msg := c.Read(remaining)
		if msg["type"] == msgType {
			return msg
		}
	}
}

// ReadClose reads until the server closes the connection and returns the
// close code, or -1 if the connection ended some other way.
func (c *WSClient) ReadClose(timeout time.Duration) int {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return ce.Code
			}
			return -1
		}
	}
}

// Close closes the connection.
func (c *WSClient) Close() error {
	return c.conn.Close()
}
