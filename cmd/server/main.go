package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/server"
	"github.com/omochice/relay-chat/pkg/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleServer)
	if err != nil {
		return err
	}

	// Flags override the CHAT_* environment
	host := flag.String("host", cfg.Host, "Interface to listen on")
	port := flag.Uint("port", uint(cfg.Port), "Port for TCP and, in single-port mode, WebSocket clients")
	wsPort := flag.Uint("ws-port", uint(cfg.WSPort), "Separate WebSocket port (0 serves both on -port)")
	policy := flag.String("policy", cfg.RelayPolicy.String(), "Whether the origin receives its own records: auto, exclude or include")
	maxConns := flag.Int("max-conns", cfg.MaxConns, "Maximum simultaneous TCP connections (0 = unlimited)")
	origins := flag.String("origins", "", "Comma separated CORS origins allowed on the HTTP endpoints")
	logLevel := flag.String("log-level", cfg.LogLevel.String(), "Log level: debug, info, warn or error")
	flag.Parse()

	if *port == 0 || *port > 65535 || *wsPort > 65535 {
		return fmt.Errorf("invalid port: -port=%d -ws-port=%d", *port, *wsPort)
	}
	cfg.Host = *host
	cfg.Port = uint16(*port)
	cfg.WSPort = uint16(*wsPort)
	if cfg.RelayPolicy, err = chat.ParseRelayPolicy(*policy); err != nil {
		return err
	}
	if cfg.LogLevel, err = logging.ParseLevel(*logLevel); err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, isatty.IsTerminal(os.Stderr.Fd()))
	slog.SetDefault(logger)

	hub := chat.NewHub(chat.WithRelayPolicy(cfg.RelayPolicy), chat.WithLogger(logger))
	opts := []server.Option{server.WithLogger(logger), server.WithMaxConns(*maxConns)}
	if *origins != "" {
		opts = append(opts, server.WithAllowedOrigins(strings.Split(*origins, ",")...))
	}
	srv := server.NewUnifiedServer(cfg.Addr(), cfg.WSAddr(), hub, opts...)

	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("relay listening",
		"protocol", protocol.Version,
		"tcp", srv.TCPAddr(),
		"websocket", srv.WSAddr(),
		"policy", cfg.RelayPolicy,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	srv.Stop()
	if err := hub.Close(); err != nil {
		logger.Warn("failed to close sessions", tint.Err(err))
	}
	logger.Info("relay stopped")
	return nil
}
