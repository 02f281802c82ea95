package server

import (
	"errors"
	"fmt"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// Sentinel errors for configuration and lifecycle misuse.
var (
	// ErrAlreadyRunning is returned by Listen and Configure while the server runs.
	ErrAlreadyRunning = errors.New("server: already running")

	// ErrNotRunning is returned by Stop and Broadcast when the server is stopped.
	ErrNotRunning = errors.New("server: not running")

	// ErrEncoderMissing is returned by Listen when no encoder is configured.
	ErrEncoderMissing = errors.New("server: message encoder is not configured")

	// ErrDecoderMissing is returned by Listen when no decoder is configured.
	ErrDecoderMissing = errors.New("server: message decoder is not configured")

	// ErrInvalidOriginPattern is returned when AllowedOriginPattern does not compile.
	ErrInvalidOriginPattern = errors.New("server: invalid origin pattern")

	// ErrEmptyTopic is returned when a topic name is empty.
	ErrEmptyTopic = errors.New("server: empty topic name")

	// ErrNilSession is returned when a nil session is passed to the topic registry.
	ErrNilSession = errors.New("server: nil session")

	// ErrSessionClosed is returned when an operation is attempted on a closed session.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrSessionNotOpen is returned when sending on a session before its handshake completed.
	ErrSessionNotOpen = errors.New("server: session not open")

	// ErrDataAlreadySet is returned when session data is set a second time.
	ErrDataAlreadySet = errors.New("server: session data already set")

	// ErrDataSealed is returned when session data is set after the upgrade.
	ErrDataSealed = errors.New("server: session data can only be set during upgrade")

	// ErrUnsupportedFrame is the cause of a protocol violation.
	ErrUnsupportedFrame = errors.New("server: unsupported frame")
)

// SessionError wraps an error with session context for debugging.
type SessionError struct {
	SessionID protocol.ConnID
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(sessionID protocol.ConnID, op string, err error) *SessionError {
	return &SessionError{
		SessionID: sessionID,
		Op:        op,
		Err:       err,
	}
}

// ProtocolError reports a frame the server refused on a connection.
type ProtocolError struct {
	SessionID protocol.ConnID
	Kind      protocol.FrameKind
	Message   string
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server: protocol error in session %s: %s frame: %s",
		e.SessionID, e.Kind, e.Message)
}

// Unwrap makes errors.Is(err, ErrUnsupportedFrame) hold for protocol errors.
func (e *ProtocolError) Unwrap() error {
	return ErrUnsupportedFrame
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(sessionID protocol.ConnID, kind protocol.FrameKind, message string) *ProtocolError {
	return &ProtocolError{
		SessionID: sessionID,
		Kind:      kind,
		Message:   message,
	}
}

// CodecError reports an encode or decode failure on a connection.
type CodecError struct {
	SessionID protocol.ConnID
	Op        string // "encode" or "decode"
	Err       error
}

// Error returns the error message.
func (e *CodecError) Error() string {
	return fmt.Sprintf("server: %s failed in session %s: %v", e.Op, e.SessionID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// HandlerError wraps a panic that occurred in an application handler.
type HandlerError struct {
	SessionID protocol.ConnID
	Event     string
	Panic     any
	Stack     []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("server: handler panic in session %s, event %s: %v",
		e.SessionID, e.Event, e.Panic)
}

// NewHandlerError creates a new HandlerError.
func NewHandlerError(sessionID protocol.ConnID, event string, panicVal any, stack []byte) *HandlerError {
	return &HandlerError{
		SessionID: sessionID,
		Event:     event,
		Panic:     panicVal,
		Stack:     stack,
	}
}

// closeCodeFor maps a per-connection failure to the close code sent when
// CloseOnException is enabled.
func closeCodeFor(err error) protocol.CloseCode {
	var (
		perr *ProtocolError
		cerr *CodecError
		herr *HandlerError
	)
	switch {
	case errors.As(err, &perr):
		if perr.Kind.IsData() {
			return protocol.CloseUnsupportedData
		}
		return protocol.CloseProtocolError
	case errors.As(err, &cerr):
		if cerr.Op == "decode" {
			return protocol.CloseInvalidFramePayloadData
		}
		return protocol.CloseInternalServerErr
	case errors.As(err, &herr):
		return protocol.CloseInternalServerErr
	default:
		return protocol.CloseInternalServerErr
	}
}

// errorKind is a low-cardinality label for a per-connection failure.
func errorKind(err error) string {
	var (
		perr *ProtocolError
		cerr *CodecError
		herr *HandlerError
	)
	switch {
	case errors.As(err, &perr):
		return "protocol"
	case errors.As(err, &cerr):
		return cerr.Op
	case errors.As(err, &herr):
		return "handler_panic"
	default:
		return "internal"
	}
}
