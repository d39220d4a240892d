// Package ws provides WebSocket transport implementation for the chat server.
package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// expired unblocks pending I/O when set as a deadline.
var expired = time.Unix(1, 0)

// Conn adapts a server side gobwas/ws connection to chat.Conn interface.
// Each data message carries one or more whole frames.
type Conn struct {
	conn       net.Conn
	remoteAddr string
	reader     *wsutil.Reader
	control    wsutil.FrameHandlerFunc

	// serializes data writes with control frame replies
	mu     sync.Mutex
	closed atomic.Bool
}

// NewConn wraps an upgraded connection.
func NewConn(conn net.Conn, remoteAddr string) *Conn {
	c := &Conn{conn: conn, remoteAddr: remoteAddr}
	handler := wsutil.ControlFrameHandler(conn, ws.StateServerSide)
	c.control = func(hdr ws.Header, r io.Reader) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return handler(hdr, r)
	}
	c.reader = &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		OnIntermediate: c.control,
	}
	return c
}

// Read implements chat.Conn.
// Control frames are answered inline; a close frame yields io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(expired) })
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, closeErr(err)
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.reader); err != nil {
				return nil, closeErr(err)
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, closeErr(err)
			}
			continue
		}
		data, err := io.ReadAll(c.reader)
		if err != nil {
			return nil, closeErr(err)
		}
		return data, nil
	}
}

// Write implements chat.Conn.
// Writes a text message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { c.conn.SetWriteDeadline(expired) })
	defer stop()

	return wsutil.WriteServerMessage(c.conn, ws.OpText, data)
}

// Close implements chat.Conn.
// It sends a normal closure frame unless a write is in flight.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.mu.TryLock() {
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		ws.WriteFrame(c.conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		c.mu.Unlock()
	}
	return c.conn.Close()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func closeErr(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return io.EOF
	}
	return err
}
