package protocol

import "errors"

// Transport errors.
var (
	// ErrNotUpgraded is returned when sending on a connection that has not
	// completed the WebSocket handshake.
	ErrNotUpgraded = errors.New("protocol: connection not upgraded")

	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("protocol: connection closed")

	// ErrTransportClosed is returned by Transport.Serve after Shutdown.
	ErrTransportClosed = errors.New("protocol: transport closed")

	// ErrUnsupportedKind is returned when a sender is asked to write a frame
	// kind it cannot produce.
	ErrUnsupportedKind = errors.New("protocol: unsupported frame kind")
)
