package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/client/tcp"
	"github.com/omochice/relay-chat/internal/client/ws"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/history"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/transfer"
	"github.com/omochice/relay-chat/pkg/protocol"
)

const (
	// stalledTransfer is how long an incomplete chunked file may go without a chunk.
	stalledTransfer = 2 * time.Minute
	expireInterval  = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-client: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleClient)
	if err != nil {
		return err
	}

	// Flags override the CHAT_* environment
	host := flag.String("host", cfg.Host, "Relay host")
	port := flag.Uint("port", uint(cfg.Port), "Relay port")
	transport := flag.String("transport", "tcp", "Transport: tcp or ws")
	name := flag.String("name", "", "Display name for chat")
	avatarPath := flag.String("avatar", "", "Image file sent as avatar")
	historyPath := flag.String("history", cfg.HistoryPath, "SQLite file mirroring received records (empty disables)")
	downloadDir := flag.String("download", cfg.DownloadDir, "Directory for received files")
	logLevel := flag.String("log-level", cfg.LogLevel.String(), "Log level: debug, info, warn or error")
	flag.Parse()

	if *name == "" {
		return errors.New("display name is required, use -name")
	}
	if *port == 0 || *port > 65535 {
		return fmt.Errorf("invalid port %d", *port)
	}
	cfg.Host = *host
	cfg.Port = uint16(*port)
	if cfg.LogLevel, err = logging.ParseLevel(*logLevel); err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, isatty.IsTerminal(os.Stderr.Fd()))
	slog.SetDefault(logger)

	var dial client.DialFunc
	switch *transport {
	case "tcp":
		dial = tcp.Dialer(cfg.Addr())
	case "ws", "websocket":
		dial = ws.Dialer(cfg.Addr())
	default:
		return fmt.Errorf("unknown transport %q, want tcp or ws", *transport)
	}

	var avatar []byte
	if *avatarPath != "" {
		if avatar, err = os.ReadFile(*avatarPath); err != nil {
			return fmt.Errorf("failed to read avatar: %w", err)
		}
	}

	var store *history.Store
	if *historyPath != "" {
		if store, err = history.Open(*historyPath); err != nil {
			return err
		}
		defer store.Close()
	}

	out := &syncWriter{w: os.Stdout}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sup *client.Supervisor
	selfID := func() string {
		if sup == nil {
			return ""
		}
		return sup.SelfID()
	}
	v := newView(out, *downloadDir, store, selfID, logger)
	if err := v.Replay(ctx); err != nil {
		logger.Warn("failed to replay history", tint.Err(err))
	}

	sup = client.New(dial, v,
		client.WithRegister(*name, avatar),
		client.WithMaxDelay(cfg.ReconnectMaxDelay),
		client.WithMaxAttempts(cfg.ReconnectMaxAttempts),
		client.WithLogger(logger),
	)
	sender := transfer.NewSender(sup.Send,
		transfer.WithChunkSize(int(cfg.ChunkSize)),
		transfer.WithThreshold(int64(cfg.ChunkThreshold)),
		transfer.WithAvatar(avatar),
		transfer.WithProgress(progressPrinter(out)),
		transfer.WithLogger(logger),
	)

	runErr := make(chan error, 1)
	go func() {
		runErr <- sup.Run(ctx)
		stop()
	}()

	go func() {
		t := time.NewTicker(expireInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				v.Expire(stalledTransfer)
			}
		}
	}()

	fmt.Fprintf(out, "Connecting to %s over %s as %s. Type /file <path> [caption] to share a file, /cancel <id> to stop one, /quit to exit.\n",
		cfg.Addr(), *transport, *name)

	ups := newUploads()
	lines := readLines(os.Stdin)
loop:
	for {
		var line string
		select {
		case <-ctx.Done():
			break loop
		case l, ok := <-lines:
			if !ok {
				break loop
			}
			line = l
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		switch {
		case cmd.quit:
			break loop
		case cmd.status:
			fmt.Fprintf(out, "*** %s, id %s ***\n", sup.State(), sup.SelfID())
			for _, st := range v.assembler.Pending() {
				fmt.Fprintf(out, "*** receiving %s: %d/%d chunks ***\n", st.FileID, st.Received, st.Total)
			}
			for _, id := range ups.active() {
				fmt.Fprintf(out, "*** sending %s ***\n", id)
			}
		case cmd.file != "":
			info, err := os.Stat(cmd.file)
			if err != nil {
				fmt.Fprintf(out, "*** failed to send %s: %v ***\n", cmd.file, err)
				continue
			}
			chunked := info.Size() > int64(cfg.ChunkThreshold)
			fileID := filepath.Base(cmd.file)
			if chunked {
				fileID = uuid.NewString()[:8] + "-" + fileID
			}
			started := ups.start(ctx, fileID, func(ctx context.Context) {
				err := sendFile(ctx, sup, sender, avatar, fileID, chunked, info.Size(), cmd.file, cmd.caption)
				switch {
				case errors.Is(err, context.Canceled) && ctx.Err() != nil:
					fmt.Fprintf(out, "*** cancelled %s ***\n", fileID)
				case err != nil:
					fmt.Fprintf(out, "*** failed to send %s: %v ***\n", cmd.file, err)
				default:
					fmt.Fprintf(out, "*** sent %s ***\n", fileID)
				}
			})
			if !started {
				fmt.Fprintf(out, "*** %s is already being sent ***\n", fileID)
			} else if chunked {
				fmt.Fprintf(out, "*** sending %s, /cancel %s to stop ***\n", fileID, fileID)
			}
		case cmd.cancel != "":
			if !ups.cancel(cmd.cancel) {
				fmt.Fprintf(out, "*** no upload %s in progress ***\n", cmd.cancel)
			}
		case cmd.text != "":
			msg := &protocol.TextMessage{Avatar: avatar, Timestamp: time.Now().UTC(), Text: cmd.text}
			if err := sup.Send(ctx, msg); err != nil {
				fmt.Fprintf(out, "*** not sent: %v ***\n", err)
			}
		}
	}

	stop()
	ups.wait()
	if err := <-runErr; err != nil {
		return err
	}
	fmt.Fprintln(out, "Disconnected from server")
	return nil
}

// sendFile shares path with the chat under fileID. A chunked file's caption
// also travels as a text message naming fileID so readers can match the
// chunks that follow.
func sendFile(ctx context.Context, sup *client.Supervisor, sender *transfer.Sender, avatar []byte, fileID string, chunked bool, size int64, path, caption string) error {
	if chunked {
		text := "sending " + fileID + " (" + strconv.FormatInt(size, 10) + " bytes)"
		if caption != "" {
			text += ": " + caption
		}
		if err := sup.Send(ctx, &protocol.TextMessage{Avatar: avatar, Timestamp: time.Now().UTC(), Text: text}); err != nil {
			return err
		}
	}
	return sender.SendFileAs(ctx, fileID, path, caption)
}

// readLines delivers stdin lines until EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxFrameBytes)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// syncWriter serializes writes from the receive loop, uploads and the prompt.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
