// Package server wires the hub to its TCP and WebSocket listeners.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/net/netutil"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/transport/tcp"
	"github.com/omochice/relay-chat/internal/transport/ws"
)

const sniffTimeout = 10 * time.Second

// UnifiedServer serves raw TCP and WebSocket clients against one Hub.
// With an empty WebSocket address both protocols share the TCP port and
// each connection is routed by its first bytes.
type UnifiedServer struct {
	tcpAddress string
	wsAddress  string
	maxConns   int
	origins    []string
	logger     *slog.Logger

	hub *chat.Hub
	tcp *tcp.Server
	ws  *ws.Server

	listener    net.Listener
	tcpListener net.Listener
	wsListener  net.Listener
	tcpVirtual  *chanListener
	httpVirtual *chanListener

	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Option configures a UnifiedServer.
type Option func(*UnifiedServer)

// WithMaxConns caps concurrent TCP connections. Zero means unlimited.
func WithMaxConns(n int) Option {
	return func(s *UnifiedServer) { s.maxConns = n }
}

// WithAllowedOrigins sets the CORS origins of the HTTP endpoints.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *UnifiedServer) { s.origins = origins }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *UnifiedServer) { s.logger = l }
}

// NewUnifiedServer creates a new UnifiedServer instance
// If wsAddress is empty, both TCP and WebSocket will be handled on tcpAddress
func NewUnifiedServer(tcpAddress, wsAddress string, hub *chat.Hub, opts ...Option) *UnifiedServer {
	s := &UnifiedServer{
		tcpAddress: tcpAddress,
		wsAddress:  wsAddress,
		hub:        hub,
		logger:     slog.Default(),
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SinglePort reports whether both protocols share one port.
func (s *UnifiedServer) SinglePort() bool {
	return s.wsAddress == ""
}

// Start binds the listeners and serves in the background until Stop.
func (s *UnifiedServer) Start() error {
	if s.SinglePort() {
		return s.startSinglePort()
	}
	return s.startDualPort()
}

func (s *UnifiedServer) startSinglePort() error {
	listener, err := net.Listen("tcp", s.tcpAddress)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	s.listener = listener
	s.tcpVirtual = newChanListener(listener.Addr())
	s.httpVirtual = newChanListener(listener.Addr())

	s.tcp = tcp.New(s.tcpAddress, s.hub, tcp.WithLogger(s.logger))
	s.ws = ws.New(s.tcpAddress, s.hub, ws.WithLogger(s.logger), ws.WithAllowedOrigins(s.origins...))

	s.logger.Info("unified server started", "addr", listener.Addr().String(), "protocols", "tcp+websocket")

	s.serve(func() error { return s.tcp.Serve(s.tcpVirtual) }, "TCP")
	s.serve(func() error { return s.ws.Serve(s.httpVirtual) }, "WebSocket")

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *UnifiedServer) startDualPort() error {
	tcpListener, err := net.Listen("tcp", s.tcpAddress)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	wsListener, err := net.Listen("tcp", s.wsAddress)
	if err != nil {
		tcpListener.Close()
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	s.tcpListener = tcpListener
	s.wsListener = wsListener

	s.tcp = tcp.New(s.tcpAddress, s.hub, tcp.WithLogger(s.logger), tcp.WithMaxConns(s.maxConns))
	s.ws = ws.New(s.wsAddress, s.hub, ws.WithLogger(s.logger), ws.WithAllowedOrigins(s.origins...))

	s.serve(func() error { return s.tcp.Serve(tcpListener) }, "TCP")
	s.serve(func() error { return s.ws.Serve(wsListener) }, "WebSocket")
	return nil
}

func (s *UnifiedServer) serve(run func() error, name string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(); err != nil {
			s.logger.Error(name+" server error", tint.Err(err))
		}
	}()
}

// Stop stops the unified server and the sessions it started.
func (s *UnifiedServer) Stop() {
	s.once.Do(func() {
		close(s.quit)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.ws != nil {
			s.ws.Stop()
		}
		if s.tcp != nil {
			s.tcp.Stop()
		}
		if s.tcpVirtual != nil {
			s.tcpVirtual.Close()
			s.httpVirtual.Close()
		}
	})
	s.wg.Wait()
}

// Addr returns the server's listening address (for single port mode)
func (s *UnifiedServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// TCPAddr returns the address raw TCP clients connect to.
func (s *UnifiedServer) TCPAddr() string {
	if s.tcpListener != nil {
		return s.tcpListener.Addr().String()
	}
	return s.Addr()
}

// WSAddr returns the address WebSocket clients connect to.
func (s *UnifiedServer) WSAddr() string {
	if s.wsListener != nil {
		return s.wsListener.Addr().String()
	}
	return s.Addr()
}

// ClientCount returns the number of connected clients
func (s *UnifiedServer) ClientCount() int {
	return s.hub.ClientCount()
}

// acceptConnections accepts connections on single port and determines protocol
func (s *UnifiedServer) acceptConnections() {
	defer s.wg.Done()

	tcp.AcceptLoop(s.listener, s.quit, s.logger, func(conn net.Conn) {
		s.wg.Add(1)
		go s.handleConnection(conn)
	})
}

// handleConnection routes the connection to the HTTP or the raw TCP server.
func (s *UnifiedServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	conn.SetReadDeadline(time.Now().Add(sniffTimeout))
	proto, reader, err := detectProtocol(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		s.logger.Debug("failed to peek connection", "remote", conn.RemoteAddr().String(), tint.Err(err))
		conn.Close()
		return
	}

	target := s.tcpVirtual
	if proto == protocolHTTP {
		target = s.httpVirtual
	}
	s.logger.Debug("routing connection", "remote", conn.RemoteAddr().String(), "protocol", proto)
	if !target.push(&bufferedConn{Conn: conn, reader: reader}) {
		conn.Close()
	}
}
