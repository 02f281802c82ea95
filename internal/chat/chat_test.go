package chat

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/pubsock/pkg/codec"
	"github.com/vango-dev/pubsock/pkg/server"
)

func startChat(t *testing.T) (*Authenticator, string) {
	t.Helper()
	auth, err := NewAuthenticator([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := server.DefaultConfig[string]().
		WithPath("/chat").
		WithCodec(codec.PlainText{}).
		WithLogger(logger).
		WithShutdownTimeout(2 * time.Second)

	srv := New(server.New[string, Member](cfg), auth, logger).Register()
	if err := srv.ListenAddr("127.0.0.1:0"); err != nil {
		t.Fatalf("ListenAddr() = %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return auth, "ws://" + srv.Addr().String() + "/chat"
}

func join(t *testing.T, auth *Authenticator, url string, m Member) *websocket.Conn {
	t.Helper()
	token, err := auth.Issue(m, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Cookie": {TokenCookie + "=" + token}})
	if err != nil {
		t.Fatalf("dial as %s: %v", m.Name, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func expect(t *testing.T, ws *websocket.Conn, want string) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read (want %q): %v", want, err)
	}
	if string(data) != want {
		t.Errorf("received %q, want %q", data, want)
	}
}

func TestChatConversation(t *testing.T) {
	auth, url := startChat(t)

	mark := join(t, auth, url, Member{ID: "1", Name: "Mark"})
	expect(t, mark, JoinNotice("Mark"))

	bob := join(t, auth, url, Member{ID: "2", Name: "Bob"})
	expect(t, mark, JoinNotice("Bob"))
	expect(t, bob, JoinNotice("Bob"))

	if err := mark.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expect(t, mark, ChatLine("Mark", "hello"))
	expect(t, bob, ChatLine("Mark", "hello"))

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := bob.WriteMessage(websocket.CloseMessage, msg); err != nil {
		t.Fatalf("close: %v", err)
	}
	expect(t, mark, LeaveNotice("Bob"))
}

func TestChatRejectsUnauthenticated(t *testing.T) {
	_, url := startChat(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no cookie: err=%v resp=%v, want 400", err, resp)
	}

	header := http.Header{"Cookie": {TokenCookie + "=forged"}}
	_, resp, err = websocket.DefaultDialer.Dial(url, header)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: err=%v resp=%v, want 401", err, resp)
	}
}

func TestNoticeFormats(t *testing.T) {
	if got := ChatLine("Mark", "hi"); got != "Mark: hi" {
		t.Errorf("ChatLine = %q", got)
	}
	if got := LeaveNotice("Bob"); got != "Bob disconnected" {
		t.Errorf("LeaveNotice = %q", got)
	}
}
