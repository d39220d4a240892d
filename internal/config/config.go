// Package config loads runtime settings from CHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/transfer"
)

// Role selects role specific defaults.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// DefaultPort is the relay port used by both roles.
const DefaultPort = 12345

// Config holds every tunable of the server and the client.
type Config struct {
	Host                 string
	Port                 uint16
	WSPort               uint16
	ChunkSize            uint32
	ChunkThreshold       uint32
	RelayPolicy          chat.RelayPolicy
	MaxConns             int
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int
	LogLevel             slog.Level
	HistoryPath          string
	DownloadDir          string
}

// Default returns the configuration used when no variable is set.
func Default(role Role) Config {
	host := "0.0.0.0"
	if role == RoleClient {
		host = "127.0.0.1"
	}
	return Config{
		Host:              host,
		Port:              DefaultPort,
		ChunkSize:         transfer.DefaultChunkSize,
		ChunkThreshold:    transfer.DefaultThreshold,
		RelayPolicy:       chat.OriginAuto,
		ReconnectMaxDelay: client.DefaultMaxDelay,
		LogLevel:          slog.LevelInfo,
		DownloadDir:       "downloads",
	}
}

// Load reads the environment on top of Default(role). Every invalid
// variable is reported in the returned error.
func Load(role Role) (Config, error) {
	return load(role, os.LookupEnv)
}

func load(role Role, lookup func(string) (string, bool)) (Config, error) {
	c := Default(role)
	var errs []error
	get := func(key string, parse func(string) error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if err := parse(v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		}
	}

	get("CHAT_HOST", func(v string) error {
		c.Host = v
		return nil
	})
	get("CHAT_PORT", func(v string) (err error) {
		c.Port, err = parsePort(v, false)
		return err
	})
	get("CHAT_WS_PORT", func(v string) (err error) {
		c.WSPort, err = parsePort(v, true)
		return err
	})
	get("CHAT_CHUNK_SIZE", func(v string) (err error) {
		c.ChunkSize, err = parsePositiveUint32(v)
		return err
	})
	get("CHAT_CHUNK_THRESHOLD", func(v string) (err error) {
		c.ChunkThreshold, err = parsePositiveUint32(v)
		return err
	})
	get("CHAT_RELAY_POLICY", func(v string) (err error) {
		c.RelayPolicy, err = chat.ParseRelayPolicy(v)
		return err
	})
	get("CHAT_MAX_CONNS", func(v string) (err error) {
		c.MaxConns, err = parseNonNegative(v)
		return err
	})
	get("CHAT_RECONNECT_MAX_DELAY", func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		if d <= 0 {
			return errors.New("must be positive")
		}
		c.ReconnectMaxDelay = d
		return nil
	})
	get("CHAT_RECONNECT_MAX_ATTEMPTS", func(v string) (err error) {
		c.ReconnectMaxAttempts, err = parseNonNegative(v)
		return err
	})
	get("CHAT_LOG_LEVEL", func(v string) (err error) {
		c.LogLevel, err = logging.ParseLevel(v)
		return err
	})
	get("CHAT_HISTORY_PATH", func(v string) error {
		c.HistoryPath = v
		return nil
	})
	get("CHAT_DOWNLOAD_DIR", func(v string) error {
		c.DownloadDir = v
		return nil
	})

	if len(errs) > 0 {
		return Default(role), fmt.Errorf("failed to load config: %w", errors.Join(errs...))
	}
	return c, nil
}

// Addr returns the relay address, host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// WSAddr returns the WebSocket address, or an empty string in single-port mode.
func (c Config) WSAddr() string {
	if c.WSPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.WSPort)))
}

func parsePort(v string, allowZero bool) (uint16, error) {
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, err
	}
	if n == 0 && !allowZero {
		return 0, errors.New("port must not be 0")
	}
	return uint16(n), nil
}

func parsePositiveUint32(v string) (uint32, error) {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("must be positive")
	}
	return uint32(n), nil
}

func parseNonNegative(v string) (int, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("out of range [0, %d]", math.MaxInt32)
	}
	return int(n), nil
}
