// Package tcp dials the relay over raw TCP.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/transport/tcp"
)

const dialTimeout = 10 * time.Second

// Dial connects to address and returns the connection as a client.Conn.
func Dial(ctx context.Context, address string) (client.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return tcp.NewConn(conn), nil
}

// Dialer returns a client.DialFunc that dials address.
func Dialer(address string) client.DialFunc {
	return func(ctx context.Context) (client.Conn, error) {
		return Dial(ctx, address)
	}
}
