package transfer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// ErrTransferIncomplete reports a transfer abandoned before every chunk arrived.
var ErrTransferIncomplete = errors.New("transfer incomplete")

// CompletedFile is a fully reassembled chunked file.
type CompletedFile struct {
	FileID string
	Data   []byte
}

// Status describes an in-flight transfer.
type Status struct {
	FileID   string
	Received uint32
	Total    uint32
	Started  time.Time
	LastSeen time.Time
}

// transfer is the reassembly state of one file ID.
type transfer struct {
	total    uint32
	chunks   map[uint32][]byte
	started  time.Time
	lastSeen time.Time
}

// Assembler rebuilds files from FileChunk records delivered in any order.
// It is safe for concurrent use.
type Assembler struct {
	mu        sync.Mutex
	transfers map[string]*transfer
	now       func() time.Time
}

// NewAssembler creates an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		transfers: make(map[string]*transfer),
		now:       time.Now,
	}
}

// Add stores the chunk and returns the file once every index is present.
// Re-delivered chunks overwrite the stored bytes and indices outside
// 0..Total-1 are ignored. A chunk whose Total differs from the transfer in
// progress starts that file ID over.
func (a *Assembler) Add(c *protocol.FileChunk) (*CompletedFile, bool) {
	if c == nil || c.Total == 0 {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	t, ok := a.transfers[c.FileID]
	if !ok || t.total != c.Total {
		t = &transfer{
			total:   c.Total,
			chunks:  make(map[uint32][]byte),
			started: now,
		}
		a.transfers[c.FileID] = t
	}
	t.lastSeen = now
	if c.Index >= t.total {
		return nil, false
	}
	t.chunks[c.Index] = c.Data

	if uint32(len(t.chunks)) < t.total {
		return nil, false
	}

	var size int
	for _, b := range t.chunks {
		size += len(b)
	}
	data := make([]byte, 0, size)
	for i := uint32(0); i < t.total; i++ {
		data = append(data, t.chunks[i]...)
	}
	delete(a.transfers, c.FileID)
	return &CompletedFile{FileID: c.FileID, Data: data}, true
}

// Cancel discards the transfer for fileID and reports whether one existed.
func (a *Assembler) Cancel(fileID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.transfers[fileID]
	delete(a.transfers, fileID)
	return ok
}

// Pending lists in-flight transfers ordered by file ID.
func (a *Assembler) Pending() []Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Status, 0, len(a.transfers))
	for id, t := range a.transfers {
		out = append(out, Status{
			FileID:   id,
			Received: uint32(len(t.chunks)),
			Total:    t.total,
			Started:  t.started,
			LastSeen: t.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

// Expire discards transfers that received no chunk for longer than maxAge,
// however long ago they started. The returned error wraps
// ErrTransferIncomplete and names every discarded file ID, or is nil when
// nothing expired.
func (a *Assembler) Expire(maxAge time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-maxAge)
	var expired []string
	for id, t := range a.transfers {
		if t.lastSeen.Before(cutoff) {
			expired = append(expired, fmt.Sprintf("%s (%d/%d chunks)", id, len(t.chunks), t.total))
			delete(a.transfers, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Strings(expired)
	return fmt.Errorf("%w: %s", ErrTransferIncomplete, strings.Join(expired, ", "))
}
