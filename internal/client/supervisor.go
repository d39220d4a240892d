package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lmittmann/tint"

	"github.com/omochice/relay-chat/pkg/protocol"
)

const (
	// DefaultInitialDelay is the first reconnect delay.
	DefaultInitialDelay = 100 * time.Millisecond
	// DefaultMaxDelay caps the reconnect delay.
	DefaultMaxDelay = 5 * time.Second
)

// Supervisor owns the client's only transport. Run dials, registers and
// reads; on transport failure it redials until the context is done or the
// attempt budget is spent. Send may be called from any goroutine.
type Supervisor struct {
	dial         DialFunc
	handler      Handler
	hello        *protocol.Register
	initialDelay time.Duration
	maxDelay     time.Duration
	maxAttempts  int
	logger       *slog.Logger

	mu     sync.RWMutex
	conn   Conn
	state  State
	selfID string

	// serializes frames on the wire
	writeMu sync.Mutex
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRegister sends a Register with the given identity on every connect.
func WithRegister(displayName string, avatar []byte) Option {
	return func(s *Supervisor) {
		s.hello = &protocol.Register{DisplayName: displayName, Avatar: avatar}
	}
}

// WithInitialDelay sets the first reconnect delay.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.initialDelay = d
		}
	}
}

// WithMaxDelay caps the reconnect delay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.maxDelay = d
		}
	}
}

// WithMaxAttempts bounds consecutive failed dials. Zero means unlimited.
func WithMaxAttempts(n int) Option {
	return func(s *Supervisor) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// New creates a Supervisor. A nil handler discards events.
func New(dial DialFunc, h Handler, opts ...Option) *Supervisor {
	if h == nil {
		h = HandlerFuncs{}
	}
	s := &Supervisor{
		dial:         dial,
		handler:      h,
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
		logger:       slog.Default(),
		state:        StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SelfID returns the sender ID the relay assigned on the current
// connection, or an empty string before the acknowledgement arrives.
func (s *Supervisor) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

func (s *Supervisor) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initialDelay
	exp.MaxInterval = s.maxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	if s.maxAttempts > 0 {
		return backoff.WithMaxRetries(exp, uint64(s.maxAttempts-1))
	}
	return exp
}

// Run connects and keeps the connection alive until ctx is done, which
// yields a nil error. It returns an error wrapping ErrReconnectExhausted
// once the configured number of consecutive dials has failed.
func (s *Supervisor) Run(ctx context.Context) error {
	b := s.newBackOff()
	defer s.setState(StateDisconnected)

	failures := 0
	for {
		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, failures, err)
			}
			s.logger.Warn("failed to connect", "attempt", failures, "retry_in", wait, tint.Err(err))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		failures = 0
		b.Reset()
		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateDisconnected)
		// A lost connection does not count against the dial budget.
		s.logger.Warn("connection lost", "remote", conn.RemoteAddr(), "retry_in", s.initialDelay, tint.Err(err))
		if !sleep(ctx, s.initialDelay) {
			return nil
		}
		b.Reset()
	}
}

// serve registers on conn and dispatches records until the transport fails.
func (s *Supervisor) serve(ctx context.Context, conn Conn) error {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
	}()

	if s.hello != nil {
		if err := s.write(ctx, conn, s.hello); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.selfID = ""
	s.mu.Unlock()
	s.setState(StateConnected)
	s.logger.Info("connected", "remote", conn.RemoteAddr())

	awaitingAck := s.hello != nil
	dec := protocol.NewDecoder()
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return &TransportError{Op: "read", Err: err}
		}

		dec.Feed(data)
		for {
			rec, ok, err := dec.Next()
			if err != nil {
				s.logger.Warn("dropping malformed record", tint.Err(err))
				continue
			}
			if !ok {
				break
			}
			if reg, isReg := rec.(*protocol.Register); isReg && awaitingAck {
				awaitingAck = false
				s.mu.Lock()
				s.selfID = reg.SenderID
				s.mu.Unlock()
				s.logger.Debug("registered", "sender_id", reg.SenderID)
			}
			s.handler.OnRecord(rec)
		}
	}
}

// Send encodes rec and writes it on the current transport. It returns
// ErrNotConnected without blocking when no transport is connected. A write
// failure closes the transport so that Run reconnects.
func (s *Supervisor) Send(ctx context.Context, rec protocol.Record) error {
	s.mu.RLock()
	conn, state := s.conn, s.state
	s.mu.RUnlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}
	return s.write(ctx, conn, rec)
}

func (s *Supervisor) write(ctx context.Context, conn Conn, rec protocol.Record) error {
	frame, err := protocol.Encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.writeMu.Lock()
	err = conn.Write(ctx, frame)
	s.writeMu.Unlock()
	if err != nil {
		conn.Close()
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
	s.handler.OnStateChange(state)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
