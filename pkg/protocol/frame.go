package protocol

// FrameKind identifies the kind of a decoded WebSocket frame.
// Values follow the RFC 6455 opcodes.
type FrameKind uint8

const (
	FrameContinuation FrameKind = 0x0 // Continuation of a fragmented message
	FrameText         FrameKind = 0x1 // UTF-8 text data
	FrameBinary       FrameKind = 0x2 // Binary data
	FrameClose        FrameKind = 0x8 // Close handshake
	FramePing         FrameKind = 0x9 // Ping control frame
	FramePong         FrameKind = 0xA // Pong control frame
)

// String returns the string representation of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameContinuation:
		return "Continuation"
	case FrameText:
		return "Text"
	case FrameBinary:
		return "Binary"
	case FrameClose:
		return "Close"
	case FramePing:
		return "Ping"
	case FramePong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// IsData reports whether the kind carries an application message.
func (k FrameKind) IsData() bool {
	return k == FrameText || k == FrameBinary
}

// IsControl reports whether the kind is a control frame.
func (k FrameKind) IsControl() bool {
	return k >= FrameClose
}

// Frame is one decoded WebSocket frame as delivered by a transport.
// Fragmented messages are reassembled by the transport before delivery.
type Frame struct {
	Kind    FrameKind
	Payload []byte

	// Close frames only.
	CloseCode   CloseCode
	CloseReason string
}

// NewFrame creates a data or control frame.
func NewFrame(kind FrameKind, payload []byte) Frame {
	return Frame{Kind: kind, Payload: payload}
}

// NewCloseFrame creates a close frame carrying a status code and reason.
func NewCloseFrame(code CloseCode, reason string) Frame {
	return Frame{Kind: FrameClose, CloseCode: code, CloseReason: reason}
}
