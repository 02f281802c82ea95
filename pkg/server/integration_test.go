package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/pubsock/pkg/codec"
	"github.com/vango-dev/pubsock/pkg/protocol"
)

// startNetworkServer runs a server on the default transport.
func startNetworkServer(t *testing.T, cfg *Config[string]) (*Server[string, member], string) {
	t.Helper()
	srv := New[string, member](cfg)
	if err := srv.ListenAddr("127.0.0.1:0"); err != nil {
		t.Fatalf("ListenAddr() = %v", err)
	}
	t.Cleanup(func() {
		if srv.IsRunning() {
			_ = srv.Stop()
		}
	})
	return srv, "ws://" + srv.Addr().String()
}

func networkConfig() *Config[string] {
	return DefaultConfig[string]().
		WithCodec(codec.PlainText{}).
		WithLogger(discardLogger()).
		WithShutdownTimeout(2 * time.Second)
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readText(t *testing.T, ws *websocket.Conn) (int, string) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return kind, string(data)
}

func TestNetworkEchoAndPublish(t *testing.T) {
	srv, url := startNetworkServer(t, networkConfig().WithPath("/chat"))

	opened := make(chan *Session[string, member], 2)
	srv.OnOpen(func(s *Session[string, member]) {
		_ = srv.Subscribe(s, "room")
		opened <- s
	}).OnMessage(func(s *Session[string, member], msg string) {
		_ = srv.Publish("room", string(s.ID())[:4]+": "+msg)
	})

	alice := dial(t, url+"/chat", nil)
	<-opened
	bob := dial(t, url+"/chat", nil)
	<-opened

	if err := alice.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, ws := range []*websocket.Conn{alice, bob} {
		kind, msg := readText(t, ws)
		if kind != websocket.TextMessage || len(msg) < 4 || msg[len(msg)-4:] != ": hi" {
			t.Errorf("received %d %q", kind, msg)
		}
	}
}

func TestNetworkRejections(t *testing.T) {
	_, url := startNetworkServer(t, networkConfig().WithPath("/chat").WithAllowedOrigins("http://example.com"))

	_, resp, err := websocket.DefaultDialer.Dial(url+"/other", http.Header{"Origin": {"http://example.com"}})
	if !errors.Is(err, websocket.ErrBadHandshake) || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("wrong path: err=%v status=%v", err, resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(url+"/chat", http.Header{"Origin": {"http://wrong.com"}})
	if !errors.Is(err, websocket.ErrBadHandshake) || resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong origin: err=%v status=%v", err, resp)
	}

	dial(t, url+"/chat", http.Header{"Origin": {"http://example.com"}})
}

func TestNetworkPingPong(t *testing.T) {
	_, url := startNetworkServer(t, networkConfig().WithPingPong(true))
	ws := dial(t, url+"/", nil)

	pongs := make(chan string, 1)
	ws.SetPongHandler(func(data string) error {
		pongs <- data
		return nil
	})
	if err := ws.WriteControl(websocket.PingMessage, []byte("are you there"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("ping: %v", err)
	}

	// Control frames are handled while reading.
	go func() {
		_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, _ = ws.ReadMessage()
	}()

	select {
	case got := <-pongs:
		if got != "are you there" {
			t.Errorf("pong payload = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestNetworkBinaryClosesOnException(t *testing.T) {
	srv, url := startNetworkServer(t, networkConfig().WithCloseOnException(true))

	var mu sync.Mutex
	var messages int
	closed := make(chan protocol.CloseCode, 1)
	srv.OnMessage(func(*Session[string, member], string) {
		mu.Lock()
		messages++
		mu.Unlock()
	}).OnClose(func(_ *Session[string, member], code protocol.CloseCode, _ string) {
		closed <- code
	})

	ws := dial(t, url+"/", nil)
	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Errorf("read = %v, want close 1003", err)
	}

	select {
	case code := <-closed:
		if code != protocol.CloseUnsupportedData {
			t.Errorf("close code = %d, want 1003", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("close handler not called")
	}

	mu.Lock()
	defer mu.Unlock()
	if messages != 0 {
		t.Errorf("messages = %d, want 0", messages)
	}
}

func TestNetworkRespondWithBinary(t *testing.T) {
	srv, url := startNetworkServer(t, networkConfig().WithRespondWithBinaryFrame(true))
	srv.OnMessage(func(s *Session[string, member], msg string) {
		_ = s.Send(msg)
	})

	ws := dial(t, url+"/", nil)
	if err := ws.WriteMessage(websocket.TextMessage, []byte("echo")); err != nil {
		t.Fatalf("write: %v", err)
	}
	kind, msg := readText(t, ws)
	if kind != websocket.BinaryMessage || msg != "echo" {
		t.Errorf("received %d %q, want binary echo", kind, msg)
	}
}

func TestNetworkPeerCloseAndStop(t *testing.T) {
	srv, url := startNetworkServer(t, networkConfig())

	closes := make(chan protocol.CloseInfo, 4)
	opened := make(chan struct{}, 4)
	srv.OnOpen(func(*Session[string, member]) { opened <- struct{}{} })
	srv.OnClose(func(_ *Session[string, member], code protocol.CloseCode, reason string) {
		closes <- protocol.CloseInfo{Code: code, Reason: reason}
	})

	leaving := dial(t, url+"/", nil)
	staying := dial(t, url+"/", nil)
	<-opened
	<-opened

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := leaving.WriteMessage(websocket.CloseMessage, msg); err != nil {
		t.Fatalf("write close: %v", err)
	}
	select {
	case info := <-closes:
		if info.Code != protocol.CloseNormalClosure || info.Reason != "done" {
			t.Errorf("close = %+v", info)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("close handler not called for peer close")
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(srv.ConnectedSessions()) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(srv.ConnectedSessions()); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	_ = staying.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := staying.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("client read after Stop = %v, want close 1001", err)
	}
	if srv.IsRunning() || len(srv.ConnectedSessions()) != 0 {
		t.Error("server not fully stopped")
	}
}

func TestNetworkStopWithReentrantCloseHandler(t *testing.T) {
	srv, url := startNetworkServer(t, networkConfig().WithShutdownTimeout(500*time.Millisecond))

	opened := make(chan struct{}, 1)
	reentered := make(chan error, 1)
	srv.OnOpen(func(*Session[string, member]) { opened <- struct{}{} })
	srv.OnClose(func(*Session[string, member], protocol.CloseCode, string) {
		_ = srv.Config()
		reentered <- srv.Stop()
	})

	dial(t, url+"/", nil)
	<-opened

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked by a close handler calling back into the server")
	}
	if err := <-reentered; !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop from close handler = %v, want ErrNotRunning", err)
	}
	if srv.IsRunning() {
		t.Error("server still running")
	}
}

func TestNetworkStopBoundedWithStuckCloseHandler(t *testing.T) {
	srv, url := startNetworkServer(t, networkConfig().WithShutdownTimeout(300*time.Millisecond))

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	opened := make(chan struct{}, 1)
	srv.OnOpen(func(*Session[string, member]) { opened <- struct{}{} })
	srv.OnClose(func(*Session[string, member], protocol.CloseCode, string) { <-release })

	dial(t, url+"/", nil)
	<-opened

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop() }()

	select {
	case err := <-stopped:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Stop() = %v, want deadline exceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the shutdown timeout")
	}
	if srv.IsRunning() {
		t.Error("server still running")
	}
}
