package protocol

import (
	"context"
	"net"
)

// ConnID identifies one transport connection. It is opaque and unique for
// the lifetime of the transport.
type ConnID string

// Sender is the outbound capability bound to one connection.
// Implementations must be safe for concurrent use.
type Sender interface {
	// Send queues a frame for delivery. It does not wait for the peer.
	Send(kind FrameKind, payload []byte) error

	// Close queues a close frame with the given code and reason and closes
	// the connection once it has been flushed.
	Close(code CloseCode, reason string) error
}

// Handler receives connection events from a transport.
// See the package documentation for ordering guarantees.
type Handler interface {
	Connected(id ConnID, out Sender)
	Upgrade(id ConnID, req *UpgradeRequest, resp *Response) bool
	Opened(id ConnID)
	Frame(id ConnID, f Frame)
	Disconnected(id ConnID, info CloseInfo)
}

// Transport accepts connections from a listener and drives a Handler.
type Transport interface {
	// Serve accepts connections on ln until Shutdown is called or ln fails.
	// It returns ErrTransportClosed after a Shutdown.
	Serve(ln net.Listener, h Handler) error

	// Shutdown stops accepting, closes every connection and waits for the
	// handler callbacks to finish. Connections still open when ctx expires
	// are closed forcibly.
	Shutdown(ctx context.Context) error
}
