package transfer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/omochice/relay-chat/pkg/protocol"
)

func TestAssembler_Expire(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAssembler()
	a.now = func() time.Time { return clock }

	a.Add(&protocol.FileChunk{FileID: "old", Index: 0, Total: 2, Data: []byte("x")})
	clock = clock.Add(time.Minute)
	a.Add(&protocol.FileChunk{FileID: "new", Index: 0, Total: 2, Data: []byte("y")})
	clock = clock.Add(30 * time.Second)

	err := a.Expire(time.Minute)
	if !errors.Is(err, ErrTransferIncomplete) {
		t.Fatalf("Expire() error = %v, want ErrTransferIncomplete", err)
	}
	if !strings.Contains(err.Error(), "old (1/2 chunks)") {
		t.Errorf("Expire() error = %q, want it to name old", err)
	}

	pending := a.Pending()
	if len(pending) != 1 || pending[0].FileID != "new" {
		t.Errorf("Pending() = %+v, want only new", pending)
	}
	if err := a.Expire(time.Minute); err != nil {
		t.Errorf("second Expire() error = %v, want nil", err)
	}
}

func TestAssembler_ExpireKeepsSlowTransfers(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAssembler()
	a.now = func() time.Time { return clock }

	const total = 200
	for i := uint32(0); i < total; i++ {
		file, done := a.Add(&protocol.FileChunk{FileID: "big", Index: i, Total: total, Data: []byte{byte(i)}})
		if i%30 == 0 {
			if err := a.Expire(2 * time.Minute); err != nil {
				t.Fatalf("Expire() at chunk %d error = %v", i, err)
			}
		}
		if i < total-1 {
			if done {
				t.Fatalf("completed early at chunk %d", i)
			}
			clock = clock.Add(time.Second)
			continue
		}
		if !done {
			t.Fatalf("not completed after last chunk, pending = %+v", a.Pending())
		}
		if len(file.Data) != total || file.Data[total-1] != byte(total-1) {
			t.Errorf("Data has %d bytes", len(file.Data))
		}
	}
}

func TestAssembler_ExpireIdle(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAssembler()
	a.now = func() time.Time { return clock }

	a.Add(&protocol.FileChunk{FileID: "slow", Index: 0, Total: 3, Data: []byte("a")})
	clock = clock.Add(50 * time.Second)
	a.Add(&protocol.FileChunk{FileID: "slow", Index: 1, Total: 3, Data: []byte("b")})
	clock = clock.Add(50 * time.Second)

	if err := a.Expire(time.Minute); err != nil {
		t.Fatalf("Expire() error = %v, want nil for a transfer seen 50s ago", err)
	}
	if p := a.Pending(); len(p) != 1 || !p[0].LastSeen.Equal(clock.Add(-50*time.Second)) {
		t.Errorf("Pending() = %+v", p)
	}

	clock = clock.Add(20 * time.Second)
	if err := a.Expire(time.Minute); !errors.Is(err, ErrTransferIncomplete) {
		t.Errorf("Expire() error = %v, want ErrTransferIncomplete after 70s idle", err)
	}
}
