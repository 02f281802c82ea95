package protocol

import (
	"net/http"
	"testing"
)

func TestLocation(t *testing.T) {
	tests := []struct {
		name   string
		secure bool
		host   string
		path   string
		want   string
	}{
		{"plain", false, "example.com:8080", "/chat", "ws://example.com:8080/chat"},
		{"tls", true, "example.com", "/chat", "wss://example.com/chat"},
		{"root", false, "localhost", "/", "ws://localhost/"},
		{"missing_slash", false, "localhost", "chat", "ws://localhost/chat"},
		{"query_kept", true, "h", "/ws?room=1", "wss://h/ws?room=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Location(tt.secure, tt.host, tt.path); got != tt.want {
				t.Errorf("Location() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpgradeRequestHeaders(t *testing.T) {
	req := &UpgradeRequest{
		Method: http.MethodGet,
		Target: "/",
		Header: http.Header{
			"Upgrade": {"websocket"},
			"Origin":  {""},
		},
	}

	if got := req.HeaderValue("upgrade"); got != "websocket" {
		t.Errorf("HeaderValue(upgrade) = %q", got)
	}
	if !req.HasHeader("origin") {
		t.Error("HasHeader(origin) = false for an empty header")
	}
	if req.HasHeader("X-Missing") {
		t.Error("HasHeader(X-Missing) = true")
	}

	var nilReq *UpgradeRequest
	if nilReq.HeaderValue("Upgrade") != "" || nilReq.HasHeader("Upgrade") {
		t.Error("nil request reported headers")
	}
}

func TestUpgradeRequestCookie(t *testing.T) {
	req := &UpgradeRequest{
		Header: http.Header{"Cookie": {"theme=dark; token=abc.def.ghi"}},
	}

	got, ok := req.Cookie("token")
	if !ok || got != "abc.def.ghi" {
		t.Errorf("Cookie(token) = %q, %v", got, ok)
	}
	if _, ok := req.Cookie("session"); ok {
		t.Error("Cookie(session) found")
	}
	if _, ok := (&UpgradeRequest{}).Cookie("token"); ok {
		t.Error("Cookie on empty request found")
	}
}

func TestResponseConstructors(t *testing.T) {
	if r := BadRequest(); r.Status != http.StatusBadRequest || r.Header == nil {
		t.Errorf("BadRequest() = %+v", r)
	}
	r := Forbidden()
	if r.Status != http.StatusForbidden {
		t.Errorf("Forbidden().Status = %d", r.Status)
	}
	r.SetBody("no")
	if string(r.Body) != "no" {
		t.Errorf("Body = %q", r.Body)
	}
}
