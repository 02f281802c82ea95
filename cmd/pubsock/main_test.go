package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/pubsock/internal/chat"
	"github.com/vango-dev/pubsock/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionShort(t *testing.T) {
	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("output = %q, want %q", out, version)
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--id", "7", "--name", "Ada", "--secret", "s3cret")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	auth, _ := chat.NewAuthenticator([]byte("s3cret"))
	m, err := auth.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if m.ID != "7" || m.Name != "Ada" {
		t.Errorf("member = %+v", m)
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("PUBSOCK_TOKEN_SECRET", "")
	if _, err := run(t, "token", "--id", "7", "--name", "Ada"); err == nil {
		t.Error("token without secret should fail")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestDaemon(t *testing.T) {
	cfg := config.New()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Path = "/chat"
	cfg.AdminAddr = "127.0.0.1:0"
	cfg.TokenSecret = "daemon-secret"
	cfg.ShutdownTimeout = config.Duration(2 * time.Second)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := startDaemon(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("startDaemon() = %v", err)
	}

	auth, _ := chat.NewAuthenticator([]byte(cfg.TokenSecret))
	token, err := auth.Issue(chat.Member{ID: "1", Name: "Mark"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(d.wsURL(cfg)+cfg.Path, http.Header{"Cookie": {chat.TokenCookie + "=" + token}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, data, err := ws.ReadMessage(); err != nil || string(data) != chat.JoinNotice("Mark") {
		t.Errorf("join notice = %q, %v", data, err)
	}

	resp, err := http.Get("http://" + d.adminLn.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.shutdown(ctx); err != nil {
		t.Errorf("shutdown() = %v", err)
	}
	if d.srv.IsRunning() {
		t.Error("server still running after shutdown")
	}
}

func TestDaemonRequiresSecret(t *testing.T) {
	cfg := config.New()
	cfg.Port = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := startDaemon(context.Background(), cfg, logger); err == nil {
		t.Error("startDaemon without secret should fail")
	}
}
