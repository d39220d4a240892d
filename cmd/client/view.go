package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/history"
	"github.com/omochice/relay-chat/internal/transfer"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// view renders received records on the terminal, saves attachments and
// mirrors what it shows into the history store.
type view struct {
	out         io.Writer
	downloadDir string
	assembler   *transfer.Assembler
	store       *history.Store
	selfID      func() string
	logger      *slog.Logger

	mu    sync.Mutex
	names map[string]string
}

func newView(out io.Writer, downloadDir string, store *history.Store, selfID func() string, logger *slog.Logger) *view {
	if selfID == nil {
		selfID = func() string { return "" }
	}
	return &view{
		out:         out,
		downloadDir: downloadDir,
		assembler:   transfer.NewAssembler(),
		store:       store,
		selfID:      selfID,
		logger:      logger,
		names:       make(map[string]string),
	}
}

// OnRecord implements client.Handler.
func (v *view) OnRecord(rec protocol.Record) {
	switch r := rec.(type) {
	case *protocol.FileWhole:
		path, err := v.save(r.Filename, r.Data)
		if err != nil {
			v.logger.Error("failed to save file", "file", r.Filename, tint.Err(err))
		}
		v.show(rec, path)
		v.mirror(rec)
	case *protocol.FileChunk:
		file, done := v.assembler.Add(r)
		if !done {
			return
		}
		path, err := v.save(file.FileID, file.Data)
		if err != nil {
			v.logger.Error("failed to save file", "file", file.FileID, tint.Err(err))
		}
		whole := &protocol.FileWhole{Timestamp: time.Now().UTC(), Filename: file.FileID, Data: file.Data}
		v.show(whole, path)
		v.mirror(whole)
	default:
		v.show(rec, "")
		v.mirror(rec)
	}
}

// OnStateChange implements client.Handler.
func (v *view) OnStateChange(state client.State) {
	switch state {
	case client.StateConnected:
		fmt.Fprintln(v.out, "*** connected ***")
	case client.StateDisconnected:
		fmt.Fprintln(v.out, "*** disconnected ***")
	}
}

// Replay prints every mirrored record.
func (v *view) Replay(ctx context.Context) error {
	if v.store == nil {
		return nil
	}
	return v.store.Replay(ctx, func(_ uint, rec protocol.Record) error {
		fmt.Fprint(v.out, "(history) ")
		v.show(rec, "")
		return nil
	})
}

// Expire drops transfers idle for longer than maxAge and reports them.
func (v *view) Expire(maxAge time.Duration) {
	if err := v.assembler.Expire(maxAge); err != nil {
		v.logger.Warn("dropped stalled transfers", tint.Err(err))
		fmt.Fprintf(v.out, "*** %v ***\n", err)
	}
}

func (v *view) show(rec protocol.Record, savedTo string) {
	switch r := rec.(type) {
	case *protocol.Register:
		v.mu.Lock()
		v.names[r.SenderID] = r.DisplayName
		v.mu.Unlock()
		if r.SenderID != "" && r.SenderID == v.selfID() {
			fmt.Fprintf(v.out, "*** registered as %s ***\n", r.DisplayName)
			return
		}
		fmt.Fprintf(v.out, "*** %s joined the chat ***\n", r.DisplayName)
	case *protocol.TextMessage:
		fmt.Fprintf(v.out, "[%s] %s: %s\n", clock(r.Timestamp), v.name(r.SenderID), r.Text)
	case *protocol.FileWhole:
		line := fmt.Sprintf("[%s] %s sent %s (%d bytes)", clock(r.Timestamp), v.name(r.SenderID), r.Filename, len(r.Data))
		if savedTo != "" {
			line += " saved to " + savedTo
		}
		if r.Caption != "" {
			line += ": " + r.Caption
		}
		fmt.Fprintln(v.out, line)
	}
}

func (v *view) mirror(rec protocol.Record) {
	if v.store == nil {
		return
	}
	if _, err := v.store.Append(context.Background(), rec); err != nil {
		v.logger.Warn("failed to write history", tint.Err(err))
	}
}

func (v *view) name(senderID string) string {
	if senderID == "" {
		return "someone"
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if n, ok := v.names[senderID]; ok {
		return n
	}
	if len(senderID) > 8 {
		return senderID[:8]
	}
	return senderID
}

// save writes data under the download directory using only the base name,
// adding a -N suffix before the extension instead of replacing a file.
func (v *view) save(name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", errors.New("empty file name")
	}
	if err := os.MkdirAll(v.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 0; n < maxSaveSuffix; n++ {
		candidate := base
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		path := filepath.Join(v.downloadDir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s in %s", base, v.downloadDir)
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Local().Format(time.TimeOnly)
}

// maxSaveSuffix bounds the name-N.ext candidates tried for a received file.
const maxSaveSuffix = 1000

// command is one parsed input line.
type command struct {
	quit    bool
	status  bool
	file    string
	caption string
	cancel  string
	text    string
}

// parseCommand interprets a line typed by the user. Lines starting with a
// double slash are sent as text with one slash removed.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return command{}, nil
	case strings.HasPrefix(line, "//"):
		return command{text: line[1:]}, nil
	case !strings.HasPrefix(line, "/"):
		return command{text: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	switch name {
	case "quit", "exit":
		return command{quit: true}, nil
	case "status":
		return command{status: true}, nil
	case "file":
		path, caption, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if path == "" {
			return command{}, errors.New("usage: /file <path> [caption]")
		}
		return command{file: path, caption: strings.TrimSpace(caption)}, nil
	case "cancel":
		fileID := strings.TrimSpace(rest)
		if fileID == "" {
			return command{}, errors.New("usage: /cancel <file id>")
		}
		return command{cancel: fileID}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s", name)
	}
}

// progressPrinter prints a line each time a transfer crosses another 10%.
func progressPrinter(out io.Writer) func(transfer.Progress) {
	var mu sync.Mutex
	last := make(map[string]int64)
	return func(p transfer.Progress) {
		if p.TotalBytes <= 0 {
			return
		}
		pct := p.BytesSent * 100 / p.TotalBytes
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := last[p.FileID]; ok && pct/10 == prev/10 && pct < 100 {
			return
		}
		last[p.FileID] = pct
		if pct >= 100 {
			delete(last, p.FileID)
		}
		fmt.Fprintf(out, "*** sending %s: %d%% (%s left) ***\n", p.FileID, pct, p.Remaining.Round(time.Second))
	}
}
