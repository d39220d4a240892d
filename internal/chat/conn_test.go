package chat_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr string

	mu       sync.Mutex
	written  [][]byte
	writes   int
	writeErr error
	block    bool
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		closeCh:    make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeCh:
		return nil, io.EOF
	case data := <-m.readCh:
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	m.writes++
	err, block := m.writeErr, m.block
	m.mu.Unlock()

	if block {
		<-m.closeCh
		return io.ErrClosedPipe
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockConn) Closed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// send feeds an encoded record to the hub as if the client wrote it.
func (m *mockConn) send(t *testing.T, rec protocol.Record) {
	t.Helper()
	data, err := protocol.Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	m.readCh <- data
}

// Records decodes everything the hub wrote to the connection.
func (m *mockConn) Records(t *testing.T) []protocol.Record {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	dec := protocol.NewDecoder()
	for _, w := range m.written {
		dec.Feed(w)
	}
	var out []protocol.Record
	for {
		rec, ok, err := dec.Next()
		if err != nil {
			t.Fatalf("hub wrote malformed frame: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)

func TestTransportError(t *testing.T) {
	err := &chat.TransportError{Op: "read", Addr: "127.0.0.1:1", Err: io.ErrUnexpectedEOF}
	if err.Error() != "read 127.0.0.1:1: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Unwrap() != io.ErrUnexpectedEOF {
		t.Error("Unwrap() did not return the cause")
	}
}
