package transfer_test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/omochice/relay-chat/internal/transfer"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// split collects the chunks a Sender emits for data.
func split(t *testing.T, fileID string, data []byte, chunkSize int) []*protocol.FileChunk {
	t.Helper()
	var chunks []*protocol.FileChunk
	s := transfer.NewSender(func(_ context.Context, rec protocol.Record) error {
		chunks = append(chunks, rec.(*protocol.FileChunk))
		return nil
	}, transfer.WithChunkSize(chunkSize), transfer.WithPause(0))

	if err := s.SendChunks(context.Background(), fileID, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("SendChunks() error = %v", err)
	}
	return chunks
}

func TestAssembler_OutOfOrder(t *testing.T) {
	chunks := split(t, "letters.txt", []byte("ABCDEFGHIJ"), 4)

	wantSizes := []int{4, 4, 2}
	if len(chunks) != len(wantSizes) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantSizes))
	}
	for i, c := range chunks {
		if len(c.Data) != wantSizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i, len(c.Data), wantSizes[i])
		}
		if c.Index != uint32(i) || c.Total != 3 {
			t.Errorf("chunk %d = index %d total %d", i, c.Index, c.Total)
		}
	}

	a := transfer.NewAssembler()
	for _, i := range []int{2, 0} {
		if _, done := a.Add(chunks[i]); done {
			t.Fatalf("Add(chunk %d) completed early", i)
		}
	}
	file, done := a.Add(chunks[1])
	if !done {
		t.Fatal("Add() did not complete after all chunks")
	}
	if string(file.Data) != "ABCDEFGHIJ" {
		t.Errorf("reassembled = %q, want %q", file.Data, "ABCDEFGHIJ")
	}
	if file.FileID != "letters.txt" {
		t.Errorf("FileID = %q, want letters.txt", file.FileID)
	}
	if n := len(a.Pending()); n != 0 {
		t.Errorf("Pending() has %d transfers after completion", n)
	}
}

func TestAssembler_AnyOrderWithDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name      string
		size      int
		chunkSize int
	}{
		{name: "exact multiple", size: 64, chunkSize: 16},
		{name: "short tail", size: 100, chunkSize: 7},
		{name: "single chunk", size: 5, chunkSize: 16},
		{name: "one byte chunks", size: 33, chunkSize: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			rng.Read(data)
			chunks := split(t, "f", data, tt.chunkSize)

			// every chunk twice, shuffled
			delivery := append(append([]*protocol.FileChunk{}, chunks...), chunks...)
			rng.Shuffle(len(delivery), func(i, j int) { delivery[i], delivery[j] = delivery[j], delivery[i] })

			a := transfer.NewAssembler()
			var got *transfer.CompletedFile
			completions := 0
			seen := map[uint32]bool{}
			for _, c := range delivery {
				seen[c.Index] = true
				file, done := a.Add(c)
				if done {
					completions++
					got = file
					if len(seen) != len(chunks) {
						t.Fatalf("completed with %d of %d chunks", len(seen), len(chunks))
					}
					break
				}
			}
			if completions != 1 {
				t.Fatalf("completions = %d, want 1", completions)
			}
			if !bytes.Equal(got.Data, data) {
				t.Error("reassembled bytes differ from original")
			}
		})
	}
}

func TestAssembler_DuplicateDoesNotCountTwice(t *testing.T) {
	a := transfer.NewAssembler()
	c0 := &protocol.FileChunk{FileID: "f", Index: 0, Total: 2, Data: []byte("ab")}

	a.Add(c0)
	if _, done := a.Add(c0); done {
		t.Fatal("duplicate chunk completed the transfer")
	}
	pending := a.Pending()
	if len(pending) != 1 || pending[0].Received != 1 || pending[0].Total != 2 {
		t.Errorf("Pending() = %+v, want 1/2", pending)
	}
}

func TestAssembler_OutOfRangeIgnored(t *testing.T) {
	a := transfer.NewAssembler()
	a.Add(&protocol.FileChunk{FileID: "f", Index: 0, Total: 2, Data: []byte("ab")})

	if _, done := a.Add(&protocol.FileChunk{FileID: "f", Index: 7, Total: 2, Data: []byte("zz")}); done {
		t.Fatal("out of range chunk completed the transfer")
	}
	file, done := a.Add(&protocol.FileChunk{FileID: "f", Index: 1, Total: 2, Data: []byte("cd")})
	if !done || string(file.Data) != "abcd" {
		t.Errorf("Add() = (%v, %v), want abcd", file, done)
	}
}

func TestAssembler_TotalMismatchRestarts(t *testing.T) {
	a := transfer.NewAssembler()
	a.Add(&protocol.FileChunk{FileID: "f", Index: 0, Total: 3, Data: []byte("old")})
	a.Add(&protocol.FileChunk{FileID: "f", Index: 1, Total: 3, Data: []byte("old")})

	a.Add(&protocol.FileChunk{FileID: "f", Index: 1, Total: 2, Data: []byte("B")})
	file, done := a.Add(&protocol.FileChunk{FileID: "f", Index: 0, Total: 2, Data: []byte("A")})
	if !done || string(file.Data) != "AB" {
		t.Errorf("Add() = (%v, %v), want AB", file, done)
	}
}

func TestAssembler_Cancel(t *testing.T) {
	a := transfer.NewAssembler()
	a.Add(&protocol.FileChunk{FileID: "f", Index: 0, Total: 2, Data: []byte("ab")})

	if !a.Cancel("f") {
		t.Error("Cancel() = false, want true")
	}
	if a.Cancel("f") {
		t.Error("second Cancel() = true, want false")
	}

	// a cancelled transfer starts over
	if _, done := a.Add(&protocol.FileChunk{FileID: "f", Index: 1, Total: 2, Data: []byte("cd")}); done {
		t.Error("Add() completed using chunks from a cancelled transfer")
	}
}

func TestAssembler_Isolation(t *testing.T) {
	a := transfer.NewAssembler()
	a.Add(&protocol.FileChunk{FileID: "a", Index: 0, Total: 2, Data: []byte("1")})
	a.Add(&protocol.FileChunk{FileID: "b", Index: 0, Total: 2, Data: []byte("2")})

	file, done := a.Add(&protocol.FileChunk{FileID: "b", Index: 1, Total: 2, Data: []byte("3")})
	if !done || string(file.Data) != "23" {
		t.Errorf("Add() = (%v, %v), want 23", file, done)
	}
	pending := a.Pending()
	if len(pending) != 1 || pending[0].FileID != "a" {
		t.Errorf("Pending() = %+v, want only a", pending)
	}
}
