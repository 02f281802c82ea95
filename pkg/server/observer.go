package server

import "github.com/vango-dev/pubsock/pkg/protocol"

// Observer receives server lifecycle and traffic notifications.
// Implementations must be safe for concurrent use and must not block.
// Package metrics provides a Prometheus implementation.
type Observer interface {
	// SessionConnected is called when a connection is registered.
	SessionConnected()

	// SessionOpened is called after a successful handshake.
	SessionOpened()

	// SessionClosed is called when a registered connection is gone.
	SessionClosed(code protocol.CloseCode)

	// UpgradeRejected is called with the status sent to a rejected peer.
	UpgradeRejected(status int)

	// MessageReceived is called for every data frame dispatched.
	MessageReceived(kind protocol.FrameKind, size int)

	// MessageSent is called for every data frame queued.
	MessageSent(kind protocol.FrameKind, size int)

	// Published is called once per Publish or Broadcast with the number of
	// sessions the message was queued for.
	Published(recipients int)

	// ConnectionError is called for every per-connection failure with a
	// low-cardinality kind: "protocol", "decode", "encode" or "handler_panic".
	ConnectionError(kind string)
}

type nopObserver struct{}

func (nopObserver) SessionConnected() {}
func (nopObserver) SessionOpened() {}
func (nopObserver) SessionClosed(protocol.CloseCode) {}
func (nopObserver) UpgradeRejected(int) {}
func (nopObserver) MessageReceived(protocol.FrameKind, int) {}
func (nopObserver) MessageSent(protocol.FrameKind, int) {}
func (nopObserver) Published(int) {}
func (nopObserver) ConnectionError(string) {}
