package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// DefaultQueueSize is the number of frames buffered per session.
const DefaultQueueSize = 256

// RelayPolicy decides whether the origin of a record receives its own copy.
type RelayPolicy int

const (
	// OriginAuto includes the origin only when the inbound record carried a
	// sender ID, so a client can render its own confirmed send.
	OriginAuto RelayPolicy = iota
	// ExcludeOrigin never echoes a record to its origin.
	ExcludeOrigin
	// IncludeOrigin always echoes a record to its origin.
	IncludeOrigin
)

func (p RelayPolicy) String() string {
	switch p {
	case OriginAuto:
		return "auto"
	case ExcludeOrigin:
		return "exclude"
	case IncludeOrigin:
		return "include"
	default:
		return "unknown"
	}
}

// ParseRelayPolicy parses auto, exclude or include.
func ParseRelayPolicy(s string) (RelayPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OriginAuto, nil
	case "exclude":
		return ExcludeOrigin, nil
	case "include":
		return IncludeOrigin, nil
	default:
		return 0, fmt.Errorf("unknown relay policy %q", s)
	}
}

// includeOrigin applies the policy to a record whose inbound sender ID was sender.
func (p RelayPolicy) includeOrigin(sender string) bool {
	switch p {
	case IncludeOrigin:
		return true
	case ExcludeOrigin:
		return false
	default:
		return sender != ""
	}
}

// Hub manages all connected sessions and handles broadcast.
// Both TCP and WebSocket servers share a single Hub instance.
type Hub struct {
	sessions  map[string]*Session
	closed    bool
	mu        sync.RWMutex
	policy    RelayPolicy
	queueSize int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

// WithRelayPolicy sets the relay policy.
func WithRelayPolicy(p RelayPolicy) Option {
	return func(h *Hub) { h.policy = p }
}

// WithQueueSize sets the per-session outgoing queue length.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a new Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions:  make(map[string]*Session),
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Policy returns the configured relay policy.
func (h *Hub) Policy() RelayPolicy {
	return h.policy
}

// Accept adds a Connecting session for conn. It fails only when the
// transport or the hub is already closed.
func (h *Hub) Accept(conn Conn) (*Session, error) {
	if conn == nil {
		return nil, ErrClosedTransport
	}
	if c, ok := conn.(closedReporter); ok && c.Closed() {
		return nil, ErrClosedTransport
	}

	s := newSession(uuid.NewString(), conn, h.queueSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosedTransport
	}
	h.sessions[s.ID] = s
	h.logger.Debug("session accepted", "session", s.ID, "remote", conn.RemoteAddr())
	return s, nil
}

// Serve runs a session for conn until the transport fails, the session is
// evicted or ctx is done. Reads and dispatch happen on the calling
// goroutine; writes happen on a dedicated one.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	s, err := h.Accept(conn)
	if err != nil {
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, s)
	}()

	err = h.readLoop(ctx, s)
	h.Evict(s)
	wg.Wait()
	return err
}

func (h *Hub) readLoop(ctx context.Context, s *Session) error {
	dec := protocol.NewDecoder()
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if s.State() == StateClosed || errors.Is(err, io.EOF) ||
				errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "read", Addr: s.RemoteAddr(), Err: err}
		}

		dec.Feed(data)
		for {
			rec, ok, err := dec.Next()
			if err != nil {
				h.logger.Warn("dropping malformed record", "session", s.ID, tint.Err(err))
				continue
			}
			if !ok {
				break
			}
			h.handle(s, rec)
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame := <-s.outgoing:
			if err := s.conn.Write(ctx, frame); err != nil {
				h.logger.Warn("failed to write to session", "session", s.ID,
					tint.Err(&TransportError{Op: "write", Addr: s.RemoteAddr(), Err: err}))
				h.Evict(s)
				return
			}
		}
	}
}

func (h *Hub) handle(s *Session, rec protocol.Record) {
	if r, ok := rec.(*protocol.Register); ok {
		h.register(s, r)
		return
	}
	if s.State() != StateActive {
		h.logger.Warn("dropping record from unregistered session", "session", s.ID, "kind", rec.Kind())
		return
	}

	include := h.policy.includeOrigin(rec.Sender())
	switch r := rec.(type) {
	case *protocol.TextMessage:
		out := *r
		out.SenderID = s.ID
		if out.Timestamp.IsZero() {
			out.Timestamp = h.now().UTC()
		}
		h.relay(&out, s, include)
	case *protocol.FileWhole:
		out := *r
		out.SenderID = s.ID
		if out.Timestamp.IsZero() {
			out.Timestamp = h.now().UTC()
		}
		h.relay(&out, s, include)
	case *protocol.FileChunk:
		h.relay(r, s, include)
	}
}

func (h *Hub) register(s *Session, r *protocol.Register) {
	if !s.identify(r.DisplayName, r.Avatar) {
		return
	}

	ack := &protocol.Register{SenderID: s.ID, DisplayName: r.DisplayName, Avatar: r.Avatar}
	frame, err := protocol.Encode(ack)
	if err != nil {
		h.logger.Error("failed to encode registration", "session", s.ID, tint.Err(err))
		return
	}
	// the ack is queued before activation so it precedes any relayed record
	if !s.enqueue(frame) {
		h.Evict(s)
		return
	}
	s.activate()
	h.logger.Info("client registered", "session", s.ID, "name", r.DisplayName, "remote", s.RemoteAddr())

	h.relayFrame(frame, s, false)
}

// Relay delivers rec to every Active session. Whether origin receives a
// copy follows the hub's RelayPolicy. A peer whose queue is full or whose
// transport is closed is evicted without affecting the others. Relay
// returns the number of sessions the record was queued for.
func (h *Hub) Relay(rec protocol.Record, origin *Session) int {
	return h.relay(rec, origin, h.policy.includeOrigin(rec.Sender()))
}

func (h *Hub) relay(rec protocol.Record, origin *Session, includeOrigin bool) int {
	frame, err := protocol.Encode(rec)
	if err != nil {
		h.logger.Error("failed to encode record", "kind", rec.Kind(), tint.Err(err))
		return 0
	}
	return h.relayFrame(frame, origin, includeOrigin)
}

func (h *Hub) relayFrame(frame []byte, origin *Session, includeOrigin bool) int {
	h.mu.RLock()
	peers := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s.State() != StateActive {
			continue
		}
		if s == origin && !includeOrigin {
			continue
		}
		peers = append(peers, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range peers {
		if s.enqueue(frame) {
			delivered++
			continue
		}
		h.logger.Warn("evicting slow or closed session", "session", s.ID)
		h.Evict(s)
	}
	return delivered
}

// Evict removes the session and closes its transport. Evicting a session
// twice is a no-op.
func (h *Hub) Evict(s *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.ID]; ok && cur == s {
		delete(h.sessions, s.ID)
	}
	h.mu.Unlock()

	closed, err := s.close()
	if !closed {
		return
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		h.logger.Debug("failed to close transport", "session", s.ID, tint.Err(err))
	}
	h.logger.Info("session closed", "session", s.ID, "name", s.DisplayName(), "remote", s.RemoteAddr())
}

// Close evicts every session and rejects further Accept calls.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Evict(s)
	}
	return nil
}

// ClientCount returns number of connected sessions in any state.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ActiveCount returns number of registered sessions.
func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		if s.State() == StateActive {
			n++
		}
	}
	return n
}

// Sessions returns a snapshot of the sessions ordered by ID.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
