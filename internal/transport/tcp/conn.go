// Package tcp provides TCP transport implementation for the chat server.
package tcp

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

const readBufferSize = 32 * 1024

// expired unblocks pending I/O when set as a deadline.
var expired = time.Unix(1, 0)

// Conn adapts net.Conn to chat.Conn interface.
type Conn struct {
	conn   net.Conn
	buf    []byte
	closed atomic.Bool
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, buf: make([]byte, readBufferSize)}
}

// Read implements chat.Conn.
// Reads available bytes from the TCP connection. Cancelling ctx unblocks it.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(expired) })
	defer stop()

	n, err := c.conn.Read(c.buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, c.buf[:n])
		return data, nil
	}
	return nil, err
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	stop := context.AfterFunc(ctx, func() { c.conn.SetWriteDeadline(expired) })
	defer stop()

	_, err := c.conn.Write(data)
	return err
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
