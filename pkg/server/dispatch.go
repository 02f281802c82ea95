package server

import (
	"runtime/debug"
	"time"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// Connected registers a session for a new connection.
// It implements protocol.Handler.
func (srv *Server[T, D]) Connected(id protocol.ConnID, out protocol.Sender) {
	s := newSession(id, out, srv, srv.logger)
	if !srv.sessions.Add(s) {
		srv.logger.Warn("duplicate connection id", "session_id", string(id))
		return
	}
	srv.observer.SessionConnected()
}

// Opened moves the session to StateOpen and fires the open handler.
// It implements protocol.Handler.
func (srv *Server[T, D]) Opened(id protocol.ConnID) {
	s := srv.sessions.Get(id)
	if s == nil || !s.transition(StateConnecting, StateOpen) {
		return
	}
	s.openFired.Store(true)
	srv.observer.SessionOpened()
	s.logger.Debug("session opened")

	if h := srv.onOpen.Load(); h != nil {
		_ = srv.safeExecute(s, "open", func() { (*h)(s) })
	}
}

// Frame dispatches one decoded frame.
// It implements protocol.Handler.
func (srv *Server[T, D]) Frame(id protocol.ConnID, f protocol.Frame) {
	s := srv.sessions.Get(id)
	if s == nil {
		srv.logger.Warn("frame for unknown session", "session_id", string(id), "kind", f.Kind.String())
		return
	}

	switch s.State() {
	case StateOpen:
	case StateClosing, StateClosed:
		return
	default:
		srv.fail(s, NewProtocolError(id, f.Kind, "frame before handshake"))
		return
	}

	rt := srv.runtime()
	if rt == nil {
		s.logger.Warn("frame before listen", "kind", f.Kind.String())
		return
	}
	cfg := rt.cfg
	switch f.Kind {
	case protocol.FrameClose:
		srv.handleClose(s, f)
	case protocol.FrameText:
		if !cfg.AllowTextFrames {
			srv.fail(s, NewProtocolError(id, f.Kind, "text frames are not allowed"))
			return
		}
		srv.handleMessage(s, f)
	case protocol.FrameBinary:
		if !cfg.AllowBinaryFrames {
			srv.fail(s, NewProtocolError(id, f.Kind, "binary frames are not allowed"))
			return
		}
		srv.handleMessage(s, f)
	case protocol.FramePing:
		if !cfg.PingPongEnabled {
			return
		}
		if err := s.out.Send(protocol.FramePong, f.Payload); err != nil {
			s.logger.Debug("pong failed", "error", err)
		}
	default:
		srv.fail(s, NewProtocolError(id, f.Kind, "frame kind not supported"))
	}
}

// handleClose acknowledges the peer's close frame and fires the close handler
// with the peer's code and reason.
func (srv *Server[T, D]) handleClose(s *Session[T, D], f protocol.Frame) {
	if !s.transition(StateOpen, StateClosing) {
		return
	}
	info := protocol.CloseInfo{Code: f.CloseCode, Reason: f.CloseReason}
	s.setCloseInfo(info)

	ack := f.CloseCode
	if ack == 0 || ack == protocol.CloseNoStatusReceived {
		ack = protocol.CloseNormalClosure
	}
	if err := s.out.Close(ack, f.CloseReason); err != nil {
		s.logger.Debug("close acknowledgement failed", "error", err)
	}

	srv.fireClose(s, info)
}

func (srv *Server[T, D]) handleMessage(s *Session[T, D], f protocol.Frame) {
	srv.observer.MessageReceived(f.Kind, len(f.Payload))

	span := srv.startMessageSpan(s, f)
	defer span.End()

	msg, err := srv.runtime().cfg.Decoder.Decode(f.Payload)
	if err != nil {
		cerr := &CodecError{SessionID: s.id, Op: "decode", Err: err}
		recordSpanError(span, cerr)
		srv.fail(s, cerr)
		return
	}

	s.touch(time.Now())

	h := srv.onMessage.Load()
	if h == nil {
		return
	}
	if err := srv.safeExecute(s, "message", func() { (*h)(s, msg) }); err != nil {
		recordSpanError(span, err)
	}
}

// Disconnected tears the session down: it leaves the registry and every
// topic, and the close handler fires if it has not yet.
// It implements protocol.Handler.
func (srv *Server[T, D]) Disconnected(id protocol.ConnID, info protocol.CloseInfo) {
	s := srv.sessions.Remove(id)
	if s == nil {
		return
	}
	srv.teardown(s, info)
}

func (srv *Server[T, D]) teardown(s *Session[T, D], info protocol.CloseInfo) {
	s.markClosed()
	srv.topics.RemoveSession(s)

	if recorded, ok := s.closeInfoRecorded(); ok {
		info = recorded
	}
	srv.observer.SessionClosed(info.Code)
	s.logger.Debug("session closed", "code", int(info.Code), "reason", info.Reason)

	if s.openFired.Load() {
		srv.fireClose(s, info)
	}
}

func (srv *Server[T, D]) fireClose(s *Session[T, D], info protocol.CloseInfo) {
	if !s.closeFired.CompareAndSwap(false, true) {
		return
	}
	if h := srv.onClose.Load(); h != nil {
		_ = srv.safeExecute(s, "close", func() { (*h)(s, info.Code, info.Reason) })
	}
}

// fail applies the per-connection exception policy: the error is logged,
// observed and passed to the error handler, and the connection is closed
// when CloseOnException is set.
func (srv *Server[T, D]) fail(s *Session[T, D], err error) {
	kind := errorKind(err)
	srv.observer.ConnectionError(kind)
	s.logger.Warn("connection error", "kind", kind, "error", err)

	if h := srv.onError.Load(); h != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("error handler panic", "panic", r)
				}
			}()
			(*h)(s, err)
		}()
	}

	rt := srv.runtime()
	if rt == nil || !rt.cfg.CloseOnException {
		return
	}
	code := closeCodeFor(err)
	if s.transition(StateOpen, StateClosing) {
		s.setCloseInfo(protocol.CloseInfo{Code: code, Reason: code.String()})
	} else if s.State() != StateConnecting {
		return
	}
	if cerr := s.out.Close(code, code.String()); cerr != nil {
		s.logger.Debug("close after error failed", "error", cerr)
	}
}

// safeExecute runs fn and turns a panic into a HandlerError that goes
// through the exception policy.
func (srv *Server[T, D]) safeExecute(s *Session[T, D], event string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			herr := NewHandlerError(s.id, event, r, debug.Stack())
			s.logger.Error("handler panic", "event", event, "panic", r)
			srv.fail(s, herr)
			err = herr
		}
	}()
	fn()
	return nil
}
