package protocol

import (
	"net/http"
	"strings"
)

// UpgradeRequest is the decoded HTTP request asking for a WebSocket upgrade.
type UpgradeRequest struct {
	// Method is the HTTP method ("GET" for a valid upgrade).
	Method string

	// Target is the raw request-target exactly as sent, query included.
	Target string

	// Host is the value of the Host header.
	Host string

	// Header holds the request headers. Multiple values per key keep
	// their wire order.
	Header http.Header

	// RemoteAddr is the peer network address, if known.
	RemoteAddr string

	// Malformed is set by the transport when the request failed to parse.
	Malformed bool

	// Location is the handshake location string (ws://host/path or
	// wss://host/path). It is filled in before the upgrade hook runs.
	Location string
}

// HeaderValue returns the first value of the named header, or "" if absent.
func (r *UpgradeRequest) HeaderValue(name string) string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get(name)
}

// HasHeader reports whether the named header is present, even if empty.
func (r *UpgradeRequest) HasHeader(name string) bool {
	if r == nil || r.Header == nil {
		return false
	}
	_, ok := r.Header[http.CanonicalHeaderKey(name)]
	return ok
}

// Cookie returns the value of the named cookie from the Cookie headers.
func (r *UpgradeRequest) Cookie(name string) (string, bool) {
	if r == nil || r.Header == nil {
		return "", false
	}
	for _, c := range (&http.Request{Header: r.Header}).Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Response is the HTTP response sent to a peer whose upgrade was rejected.
// On acceptance its headers are added to the handshake response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a response with the given status and empty headers.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// BadRequest creates a 400 response.
func BadRequest() *Response {
	return NewResponse(http.StatusBadRequest)
}

// Forbidden creates a 403 response.
func Forbidden() *Response {
	return NewResponse(http.StatusForbidden)
}

// SetBody replaces the response body.
func (r *Response) SetBody(body string) {
	r.Body = []byte(body)
}

// Location builds a handshake location string from host and path.
// The scheme is wss when secure is true, ws otherwise.
func Location(secure bool, host, path string) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + host + path
}
