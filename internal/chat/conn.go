// Package chat provides the relay core shared by all transports: sessions,
// membership and fan-out.
package chat

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosedTransport is returned when a transport or the hub is already closed.
var ErrClosedTransport = errors.New("transport closed")

// Conn abstracts a bidirectional connection for both TCP and WebSocket.
// This interface isolates transport details from chat logic.
type Conn interface {
	// Read returns the next bytes available on the connection. They may hold
	// several frames or a partial one. Returns io.EOF when the peer closes.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one or more complete frames.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// closedReporter is implemented by transports that know they were closed.
type closedReporter interface {
	Closed() bool
}

// TransportError wraps a read or write failure on a session.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
