package tcp_test

import (
	"context"
	"net"
	"testing"

	"github.com/omochice/relay-chat/internal/client/tcp"
)

func startMockServer(t *testing.T) (string, func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if n > 0 {
						c.Write(buf[:n])
					}
				}
			}(conn)
		}
	}()

	return listener.Addr().String(), func() { listener.Close() }
}

func TestDial_Echo(t *testing.T) {
	addr, cleanup := startMockServer(t)
	defer cleanup()

	conn, err := tcp.Dialer(addr)(context.Background())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if err := conn.Write(context.Background(), []byte("REGISTER||echo|\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "REGISTER||echo|\n" {
		t.Errorf("Read() = %q", data)
	}
	if conn.RemoteAddr() != addr {
		t.Errorf("RemoteAddr() = %q, want %q", conn.RemoteAddr(), addr)
	}
}

func TestDial_Refused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	if _, err := tcp.Dial(context.Background(), addr); err == nil {
		t.Error("Dial() expected error for closed port")
	}
}
