package config_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/config"
)

var chatVars = []string{
	"CHAT_HOST", "CHAT_PORT", "CHAT_WS_PORT", "CHAT_CHUNK_SIZE", "CHAT_CHUNK_THRESHOLD",
	"CHAT_RELAY_POLICY", "CHAT_MAX_CONNS", "CHAT_RECONNECT_MAX_DELAY",
	"CHAT_RECONNECT_MAX_ATTEMPTS", "CHAT_LOG_LEVEL", "CHAT_HISTORY_PATH", "CHAT_DOWNLOAD_DIR",
}

// clearEnv blanks every CHAT_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range chatVars {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	srv, err := config.Load(config.RoleServer)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if srv.Addr() != "0.0.0.0:12345" {
		t.Errorf("server Addr() = %q, want 0.0.0.0:12345", srv.Addr())
	}
	if srv.WSAddr() != "" {
		t.Errorf("WSAddr() = %q, want single-port mode", srv.WSAddr())
	}
	if srv.ChunkSize != 65536 || srv.ChunkThreshold != 1048576 {
		t.Errorf("chunking = %d/%d, want 65536/1048576", srv.ChunkSize, srv.ChunkThreshold)
	}
	if srv.RelayPolicy != chat.OriginAuto {
		t.Errorf("RelayPolicy = %v, want auto", srv.RelayPolicy)
	}
	if srv.ReconnectMaxDelay != 5*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 5s", srv.ReconnectMaxDelay)
	}

	cli, err := config.Load(config.RoleClient)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cli.Addr() != "127.0.0.1:12345" {
		t.Errorf("client Addr() = %q, want 127.0.0.1:12345", cli.Addr())
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_HOST", "::1")
	t.Setenv("CHAT_PORT", "9000")
	t.Setenv("CHAT_WS_PORT", "9001")
	t.Setenv("CHAT_CHUNK_SIZE", "1024")
	t.Setenv("CHAT_CHUNK_THRESHOLD", "4096")
	t.Setenv("CHAT_RELAY_POLICY", "exclude")
	t.Setenv("CHAT_MAX_CONNS", "10")
	t.Setenv("CHAT_RECONNECT_MAX_DELAY", "2s")
	t.Setenv("CHAT_RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("CHAT_LOG_LEVEL", "debug")
	t.Setenv("CHAT_HISTORY_PATH", "/tmp/history.db")
	t.Setenv("CHAT_DOWNLOAD_DIR", "/tmp/dl")

	c, err := config.Load(config.RoleServer)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := config.Config{
		Host:                 "::1",
		Port:                 9000,
		WSPort:               9001,
		ChunkSize:            1024,
		ChunkThreshold:       4096,
		RelayPolicy:          chat.ExcludeOrigin,
		MaxConns:             10,
		ReconnectMaxDelay:    2 * time.Second,
		ReconnectMaxAttempts: 3,
		LogLevel:             slog.LevelDebug,
		HistoryPath:          "/tmp/history.db",
		DownloadDir:          "/tmp/dl",
	}
	if c != want {
		t.Errorf("Load() = %+v, want %+v", c, want)
	}
	if c.Addr() != "[::1]:9000" || c.WSAddr() != "[::1]:9001" {
		t.Errorf("Addr() = %q, WSAddr() = %q", c.Addr(), c.WSAddr())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "CHAT_PORT", value: "70000"},
		{key: "CHAT_PORT", value: "0"},
		{key: "CHAT_PORT", value: "http"},
		{key: "CHAT_WS_PORT", value: "-1"},
		{key: "CHAT_CHUNK_SIZE", value: "0"},
		{key: "CHAT_CHUNK_THRESHOLD", value: "5000000000"},
		{key: "CHAT_RELAY_POLICY", value: "sometimes"},
		{key: "CHAT_MAX_CONNS", value: "-5"},
		{key: "CHAT_RECONNECT_MAX_DELAY", value: "soon"},
		{key: "CHAT_RECONNECT_MAX_DELAY", value: "-1s"},
		{key: "CHAT_RECONNECT_MAX_ATTEMPTS", value: "many"},
		{key: "CHAT_LOG_LEVEL", value: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := config.Load(config.RoleServer)
			if err == nil {
				t.Fatalf("Load() error = nil for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestLoad_ReportsEveryInvalidVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PORT", "abc")
	t.Setenv("CHAT_LOG_LEVEL", "loud")

	_, err := config.Load(config.RoleClient)
	if err == nil {
		t.Fatal("Load() error = nil")
	}
	for _, key := range []string{"CHAT_PORT", "CHAT_LOG_LEVEL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}
