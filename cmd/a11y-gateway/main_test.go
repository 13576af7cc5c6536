// ABOUTME: Tests for the a11y-gateway command line
// ABOUTME: Covers flag parsing, logger setup, generated configs and the HTTP commands

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/a11y-gateway/internal/config"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("A11Y_CONFIG", "/env/gateway.yaml")

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "default from env", args: nil, want: "/env/gateway.yaml"},
		{name: "long flag", args: []string{"--config", "/tmp/a.yaml"}, want: "/tmp/a.yaml"},
		{name: "long flag with equals", args: []string{"--config=/tmp/b.yaml"}, want: "/tmp/b.yaml"},
		{name: "short flag", args: []string{"-c", "/tmp/c.yaml"}, want: "/tmp/c.yaml"},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: true},
		{name: "stray argument", args: []string{"extra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags("serve", tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags("serve", []string{"--help"})
	assert.True(t, errors.Is(err, pflag.ErrHelp))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.Debug("hidden")
	logger.With("component", "broker").WithGroup("svc").Info("=== SERVICE BOUND ===", "id", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF === SERVICE BOUND ===")
	assert.Contains(t, out, " component=broker")
	assert.Contains(t, out, " svc.id=3")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("skipped")
	logger.Warn("kept", "user_id", 10)

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"user_id":10`)
}

func TestRenderConfig_RoundTrips(t *testing.T) {
	content := renderConfig(initConfig{
		GRPCAddr:        "127.0.0.1:1",
		HTTPAddr:        "127.0.0.1:2",
		DBPath:          "/var/lib/a11y/settings.db",
		InitialUser:     "10",
		KeyEventTimeout: "750ms",
		ManifestDir:     "/etc/a11y/services",
		Watch:           true,
		LogLevel:        "debug",
		LogFormat:       "json",
	})

	cfg, err := config.Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:1", cfg.Server.GRPCAddr)
	assert.Equal(t, "/var/lib/a11y/settings.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Broker.InitialUser)
	assert.Equal(t, "750ms", cfg.Broker.KeyEventTimeout.String())
	assert.True(t, cfg.Inventory.Watch)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// writeClientConfig points a config file at srv and returns its path.
func writeClientConfig(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := fmt.Sprintf("server:\n  http_addr: %q\ndatabase:\n  path: \":memory:\"\n", net.JoinHostPort(host, port))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, runHealth(context.Background(), writeClientConfig(t, srv)))
}

func TestRunHealth_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := runHealth(context.Background(), writeClientConfig(t, srv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestRunState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/debug/state" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"broker":{"current_user":0}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runState(context.Background(), writeClientConfig(t, srv), &out))
	assert.JSONEq(t, `{"broker":{"current_user":0}}`, out.String())
}
