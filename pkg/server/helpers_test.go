package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/vango-dev/pubsock/pkg/codec"
	"github.com/vango-dev/pubsock/pkg/protocol"
)

type member struct {
	Name string
}

// fakeSender records outbound frames.
type fakeSender struct {
	mu     sync.Mutex
	frames []protocol.Frame
	err    error
}

func (f *fakeSender) Send(kind protocol.FrameKind, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, protocol.NewFrame(kind, append([]byte(nil), payload...)))
	return nil
}

func (f *fakeSender) Close(code protocol.CloseCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, protocol.NewCloseFrame(code, reason))
	return nil
}

func (f *fakeSender) sent() []protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Frame(nil), f.frames...)
}

func (f *fakeSender) closeFrame() (protocol.Frame, bool) {
	for _, fr := range f.sent() {
		if fr.Kind == protocol.FrameClose {
			return fr, true
		}
	}
	return protocol.Frame{}, false
}

// fakeTransport serves nothing; tests drive the server's handler methods directly.
type fakeTransport struct {
	stop chan struct{}
	once sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{stop: make(chan struct{})}
}

func (t *fakeTransport) Serve(ln net.Listener, _ protocol.Handler) error {
	<-t.stop
	_ = ln.Close()
	return protocol.ErrTransportClosed
}

func (t *fakeTransport) Shutdown(context.Context) error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config[string] {
	return DefaultConfig[string]().
		WithCodec(codec.PlainText{}).
		WithTransport(newFakeTransport()).
		WithLogger(discardLogger())
}

// startServer runs a server on a fake transport bound to a loopback port.
func startServer(t *testing.T, cfg *Config[string]) *Server[string, member] {
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
	return srv
}

func upgradeRequest(target string) *protocol.UpgradeRequest {
	return &protocol.UpgradeRequest{
		Method: http.MethodGet,
		Target: target,
		Host:   "localhost:8080",
		Header: http.Header{
			"Upgrade":    {"websocket"},
			"Connection": {"Upgrade"},
		},
	}
}

// connect registers a connection and completes its upgrade and handshake.
func connect(t *testing.T, srv *Server[string, member], id protocol.ConnID) (*Session[string, member], *fakeSender) {
	t.Helper()
	out := &fakeSender{}
	srv.Connected(id, out)

	resp := protocol.BadRequest()
	if !srv.Upgrade(id, upgradeRequest(srv.Config().Path), resp) {
		t.Fatalf("upgrade of %s rejected with %d", id, resp.Status)
	}
	srv.Opened(id)

	s := srv.Session(id)
	if s == nil {
		t.Fatalf("session %s not registered", id)
	}
	return s, out
}
