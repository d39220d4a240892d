package tcp_test

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/transport/tcp"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startServer(t *testing.T, opts ...tcp.Option) (*tcp.Server, *chat.Hub) {
	t.Helper()
	hub := chat.NewHub(chat.WithLogger(quiet))
	srv := tcp.New(":0", hub, append([]tcp.Option{tcp.WithLogger(quiet)}, opts...)...)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.Serve(listener)
	t.Cleanup(srv.Stop)

	time.Sleep(20 * time.Millisecond)
	return srv, hub
}

// register sends a REGISTER line and returns the ack line.
func register(t *testing.T, conn net.Conn, name string) (string, error) {
	t.Helper()
	if _, err := conn.Write([]byte("REGISTER||" + name + "|\n")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	return bufio.NewReader(conn).ReadString('\n')
}

func TestServer_Start(t *testing.T) {
	hub := chat.NewHub(chat.WithLogger(quiet))
	srv := tcp.New("127.0.0.1:0", hub, tcp.WithLogger(quiet))

	go srv.Start()
	defer srv.Stop()

	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	conn.Close()
}

func TestServer_Register(t *testing.T) {
	srv, hub := startServer(t)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	line, err := register(t, conn, "alice")
	if err != nil {
		t.Fatalf("failed to read ack: %v", err)
	}
	if !strings.HasPrefix(line, "REGISTER|") || !strings.Contains(line, "|alice|") {
		t.Errorf("ack = %q", line)
	}
	if got := hub.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestServer_MaxConns(t *testing.T) {
	srv, _ := startServer(t, tcp.WithMaxConns(1))

	first, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := register(t, first, "first"); err != nil {
		t.Fatalf("first ack: %v", err)
	}

	second, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer second.Close()

	if _, err := second.Write([]byte("REGISTER||second|\n")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	reader := bufio.NewReader(second)
	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := reader.ReadString('\n'); err == nil {
		t.Fatal("second connection was served while the first held the only slot")
	}

	first.Close()
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if !strings.Contains(line, "|second|") {
		t.Errorf("ack = %q", line)
	}
}

func TestServer_Stop(t *testing.T) {
	hub := chat.NewHub(chat.WithLogger(quiet))
	srv := tcp.New("127.0.0.1:0", hub, tcp.WithLogger(quiet))

	go srv.Start()

	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked on an idle session")
	}

	_, err = net.Dial("tcp", srv.Addr())
	if err == nil {
		t.Error("expected error after stop, got nil")
	}
}
