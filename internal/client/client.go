// Package client supervises the client side of a relay connection: one
// transport at a time, a receive loop dispatching decoded records, and
// reconnection with bounded backoff.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/omochice/relay-chat/pkg/protocol"
)

var (
	// ErrNotConnected is returned by Send while no transport is connected.
	ErrNotConnected = errors.New("not connected to server")
	// ErrReconnectExhausted is returned by Run after the last allowed dial fails.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Conn is the client end of a transport.
type Conn interface {
	// Read returns the next bytes received. They may hold several frames or
	// a partial one. Cancelling ctx unblocks it.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one or more complete frames.
	Write(ctx context.Context, data []byte) error
	Close() error
	RemoteAddr() string
}

// DialFunc opens a new transport to the relay.
type DialFunc func(ctx context.Context) (Conn, error)

// TransportError wraps a read or write failure on the current transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// State is the connection state owned by a Supervisor.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives events from the Supervisor's receive loop.
// Calls are made from a single goroutine, one at a time.
type Handler interface {
	// OnRecord is called once for every well-formed record received.
	OnRecord(rec protocol.Record)
	// OnStateChange is called on every state transition.
	OnStateChange(state State)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Record      func(rec protocol.Record)
	StateChange func(state State)
}

func (h HandlerFuncs) OnRecord(rec protocol.Record) {
	if h.Record != nil {
		h.Record(rec)
	}
}

func (h HandlerFuncs) OnStateChange(state State) {
	if h.StateChange != nil {
		h.StateChange(state)
	}
}
