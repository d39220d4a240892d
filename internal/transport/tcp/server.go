package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/lmittmann/tint"
	"golang.org/x/net/netutil"

	"github.com/omochice/relay-chat/internal/chat"
)

// Server handles TCP connections and delegates to Hub.
type Server struct {
	address  string
	maxConns int
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener

	hub    *chat.Hub
	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMaxConns caps concurrent connections. Zero means unlimited.
func WithMaxConns(n int) Option {
	return func(s *Server) { s.maxConns = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a TCP server that uses the provided Hub.
func New(address string, hub *chat.Hub, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		address: address,
		hub:     hub,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Stop or until the listener
// is closed.
func (s *Server) Serve(listener net.Listener) error {
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("TCP server started", "addr", listener.Addr().String(), "max_conns", s.maxConns)

	AcceptLoop(listener, s.quit, s.logger, func(conn net.Conn) {
		s.wg.Add(1)
		go s.handleConn(conn)
	})
	return nil
}

// Stop stops the TCP server and ends its sessions.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.quit)
		s.cancel()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	if err := s.hub.Serve(s.ctx, NewConn(conn)); err != nil {
		s.logger.Warn("TCP session ended", "remote", conn.RemoteAddr().String(), tint.Err(err))
	}
}
