// Package ws dials the relay over WebSocket.
package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/relay-chat/internal/client"
)

// expired unblocks pending I/O when set as a deadline.
var expired = time.Unix(1, 0)

// Conn adapts a gorilla WebSocket connection to client.Conn.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewConn wraps a websocket.Conn.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read returns the payload of the next data message.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(expired) })
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write sends data as one text message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure and closes the connection.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// RemoteAddr returns the server address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// URL turns host:port into the relay's WebSocket URL. Full ws:// or wss://
// URLs are returned unchanged.
func URL(address string) string {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return address
	}
	return (&url.URL{Scheme: "ws", Host: address, Path: "/ws"}).String()
}

// Dial connects to the WebSocket endpoint at address.
func Dial(ctx context.Context, address string) (client.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, URL(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn), nil
}

// Dialer returns a client.DialFunc that dials address.
func Dialer(address string) client.DialFunc {
	return func(ctx context.Context) (client.Conn, error) {
		return Dial(ctx, address)
	}
}
