package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/lmittmann/tint"
	"github.com/rs/cors"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/pkg/protocol"
)

const (
	// Path is where clients upgrade to WebSocket.
	Path = "/ws"
	// HealthPath reports hub membership as JSON.
	HealthPath = "/health"
)

// Server handles WebSocket connections and delegates to Hub.
type Server struct {
	address string
	origins []string
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server

	hub    *chat.Hub
	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allowed origins. Empty allows all.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a WebSocket server that uses the provided Hub.
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

// Handler returns the HTTP handler serving Path and HealthPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	mux.HandleFunc(HealthPath, s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(mux)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	return s.Serve(listener)
}

// Serve serves HTTP on listener until Stop or until the listener is closed.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("WebSocket server started", "addr", listener.Addr().String(), "path", Path)

	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Stop stops the WebSocket server and ends its sessions.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.quit)
		s.cancel()
		s.mu.Lock()
		srv := s.server
		s.mu.Unlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Warn("failed to shut down WebSocket server", tint.Err(err))
			}
		}
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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("failed to upgrade WebSocket connection", "remote", r.RemoteAddr, tint.Err(err))
		return
	}
	if rw != nil && rw.Reader.Buffered() > 0 {
		conn = &bufferedConn{Conn: conn, reader: rw.Reader}
	}

	s.wg.Add(1)
	defer s.wg.Done()
	if err := s.hub.Serve(s.ctx, NewConn(conn, r.RemoteAddr)); err != nil {
		s.logger.Warn("WebSocket session ended", "remote", r.RemoteAddr, tint.Err(err))
	}
}

type health struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol"`
	Clients  int    `json:"clients"`
	Active   int    `json:"active"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health{
		Status:   "ok",
		Protocol: protocol.Version,
		Clients:  s.hub.ClientCount(),
		Active:   s.hub.ActiveCount(),
	})
}

// bufferedConn keeps bytes the HTTP server read past the handshake.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}
