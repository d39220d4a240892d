package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/omochice/relay-chat/pkg/protocol"
)

const (
	// DefaultChunkSize is the payload size of one FileChunk record.
	DefaultChunkSize = 64 * 1024
	// DefaultThreshold is the largest file sent as a single FileWhole record.
	DefaultThreshold = 1024 * 1024
	// DefaultPause is the delay between chunks.
	DefaultPause = 10 * time.Millisecond
)

// SendFunc delivers one record to the relay.
type SendFunc func(ctx context.Context, rec protocol.Record) error

// Progress is reported after every chunk.
type Progress struct {
	FileID     string
	BytesSent  int64
	TotalBytes int64
	// Remaining is the estimated time left, derived from the throughput so far.
	Remaining time.Duration
}

// Sender turns files into FileWhole or FileChunk records.
type Sender struct {
	send       SendFunc
	chunkSize  int
	threshold  int64
	pause      time.Duration
	avatar     []byte
	onProgress func(Progress)
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Sender.
type Option func(*Sender)

// WithChunkSize sets the chunk payload size. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(s *Sender) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithThreshold sets the largest size sent as a whole file.
func WithThreshold(n int64) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.threshold = n
		}
	}
}

// WithPause sets the delay between chunks. Zero disables it.
func WithPause(d time.Duration) Option {
	return func(s *Sender) { s.pause = d }
}

// WithAvatar sets the avatar attached to whole-file records.
func WithAvatar(avatar []byte) Option {
	return func(s *Sender) { s.avatar = avatar }
}

// WithProgress registers a callback invoked after every chunk.
func WithProgress(fn func(Progress)) Option {
	return func(s *Sender) { s.onProgress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// NewSender creates a Sender that hands records to send.
func NewSender(send SendFunc, opts ...Option) *Sender {
	s := &Sender{
		send:      send,
		chunkSize: DefaultChunkSize,
		threshold: DefaultThreshold,
		pause:     DefaultPause,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendFile sends the file at path using its base name as file ID.
func (s *Sender) SendFile(ctx context.Context, path, caption string) error {
	return s.SendFileAs(ctx, filepath.Base(path), path, caption)
}

// SendFileAs sends the file at path under the given file ID.
// Files up to the threshold go out as one FileWhole record carrying caption;
// larger files are chunked and the caption is left to the caller.
func (s *Sender) SendFileAs(ctx context.Context, fileID, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("failed to send %s: is a directory", path)
	}

	if info.Size() <= s.threshold {
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		return s.send(ctx, &protocol.FileWhole{
			Avatar:    s.avatar,
			Timestamp: s.now().UTC(),
			Filename:  fileID,
			Data:      data,
			Caption:   caption,
		})
	}
	return s.SendChunks(ctx, fileID, f, info.Size())
}

// SendChunks emits ceil(size/chunkSize) FileChunk records in index order.
// The context is checked before every chunk; a cancelled transfer stops
// without any trailing record.
func (s *Sender) SendChunks(ctx context.Context, fileID string, r io.ReaderAt, size int64) error {
	total := ChunkCount(size, s.chunkSize)
	start := s.now()
	var sent int64

	s.logger.Debug("starting chunked transfer", "file_id", fileID, "size", size, "chunks", total)
	for i := uint32(0); i < total; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transfer %s cancelled at chunk %d/%d: %w", fileID, i, total, err)
		}

		off := int64(i) * int64(s.chunkSize)
		data := make([]byte, min(int64(s.chunkSize), size-off))
		if n, err := r.ReadAt(data, off); n < len(data) {
			return fmt.Errorf("failed to read chunk %d of %s: %w", i, fileID, err)
		}

		chunk := &protocol.FileChunk{FileID: fileID, Index: i, Total: total, Data: data}
		if err := s.send(ctx, chunk); err != nil {
			return fmt.Errorf("failed to send chunk %d of %s: %w", i, fileID, err)
		}
		sent += int64(len(data))
		s.report(fileID, sent, size, start)

		if s.pause > 0 && i+1 < total {
			t := time.NewTimer(s.pause)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
	return nil
}

func (s *Sender) report(fileID string, sent, total int64, start time.Time) {
	if s.onProgress == nil {
		return
	}
	p := Progress{FileID: fileID, BytesSent: sent, TotalBytes: total}
	if dt := s.now().Sub(start).Seconds(); dt > 0 {
		if speed := float64(sent) / dt; speed > 0 {
			p.Remaining = time.Duration(float64(total-sent) / speed * float64(time.Second))
		}
	}
	s.onProgress(p)
}

// ChunkCount returns ceil(size/chunkSize), which is 0 for an empty file.
func ChunkCount(size int64, chunkSize int) uint32 {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return uint32((size + int64(chunkSize) - 1) / int64(chunkSize))
}
