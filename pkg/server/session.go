package server

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StateConnecting covers the time between connection and handshake.
	StateConnecting State = iota
	// StateOpen means the handshake completed and frames are dispatched.
	StateOpen
	// StateClosing means a close frame was received and acknowledged.
	StateClosing
	// StateClosed means the transport reported the disconnect.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session is one live WebSocket connection.
// T is the application message type, D the caller-defined per-connection data.
// All methods are safe for concurrent use.
type Session[T, D any] struct {
	id          protocol.ConnID
	connectedAt time.Time

	// Unix nanoseconds of the last inbound message, 0 until the first one.
	lastMessageAt atomic.Int64

	state      atomic.Int32
	openFired  atomic.Bool
	closeFired atomic.Bool

	// Close frame exchanged when the session left StateOpen.
	closeMu   sync.Mutex
	closeInfo *protocol.CloseInfo

	dataMu  sync.RWMutex
	data    D
	dataSet bool

	// Reverse index of subscribed topics, used on teardown.
	topicsMu sync.Mutex
	topics   map[string]struct{}

	out    protocol.Sender
	server *Server[T, D]
	logger *slog.Logger
}

func newSession[T, D any](id protocol.ConnID, out protocol.Sender, srv *Server[T, D], logger *slog.Logger) *Session[T, D] {
	return &Session[T, D]{
		id:          id,
		connectedAt: time.Now(),
		topics:      make(map[string]struct{}),
		out:         out,
		server:      srv,
		logger:      logger.With("session_id", string(id)),
	}
}

// ID returns the connection identity.
func (s *Session[T, D]) ID() protocol.ConnID {
	return s.id
}

// ConnectedAt returns when the transport reported the connection.
func (s *Session[T, D]) ConnectedAt() time.Time {
	return s.connectedAt
}

// LastMessageAt returns when the last inbound message was received.
// The boolean is false until the first message.
func (s *Session[T, D]) LastMessageAt() (time.Time, bool) {
	ns := s.lastMessageAt.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// touch records an inbound message. The stored value strictly increases.
func (s *Session[T, D]) touch(now time.Time) {
	for {
		prev := s.lastMessageAt.Load()
		next := now.UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if s.lastMessageAt.CompareAndSwap(prev, next) {
			return
		}
	}
}

// State returns the current lifecycle state.
func (s *Session[T, D]) State() State {
	return State(s.state.Load())
}

func (s *Session[T, D]) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// markClosed moves the session to StateClosed and returns the previous state.
func (s *Session[T, D]) markClosed() State {
	return State(s.state.Swap(int32(StateClosed)))
}

// IsClosed returns whether the transport reported the disconnect.
func (s *Session[T, D]) IsClosed() bool {
	return s.State() == StateClosed
}

// Data returns the per-connection data. The boolean is false when no data
// was set during the upgrade.
func (s *Session[T, D]) Data() (D, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.data, s.dataSet
}

// SetData attaches per-connection data. It may be called at most once and
// only while the upgrade is being negotiated.
func (s *Session[T, D]) SetData(data D) error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	if s.dataSet {
		return NewSessionError(s.id, "set data", ErrDataAlreadySet)
	}
	if s.State() != StateConnecting {
		return NewSessionError(s.id, "set data", ErrDataSealed)
	}
	s.data = data
	s.dataSet = true
	return nil
}

// Send encodes msg and queues it for delivery. The frame is binary when the
// server responds with binary frames, text otherwise.
// An encode failure is also reported through the server's error path.
func (s *Session[T, D]) Send(msg T) error {
	switch s.State() {
	case StateConnecting:
		return NewSessionError(s.id, "send", ErrSessionNotOpen)
	case StateClosed:
		return NewSessionError(s.id, "send", ErrSessionClosed)
	}

	kind, payload, err := s.server.encode(msg)
	if err != nil {
		cerr := &CodecError{SessionID: s.id, Op: "encode", Err: err}
		s.server.fail(s, cerr)
		return cerr
	}
	return s.sendRaw(kind, payload)
}

// sendRaw queues an already encoded payload.
func (s *Session[T, D]) sendRaw(kind protocol.FrameKind, payload []byte) error {
	if err := s.out.Send(kind, payload); err != nil {
		return NewSessionError(s.id, "send", err)
	}
	s.server.observer.MessageSent(kind, len(payload))
	return nil
}

// Close sends a close frame and closes the connection once it is flushed.
func (s *Session[T, D]) Close(code protocol.CloseCode, reason string) error {
	if s.IsClosed() {
		return NewSessionError(s.id, "close", ErrSessionClosed)
	}
	if err := s.out.Close(code, reason); err != nil {
		return NewSessionError(s.id, "close", err)
	}
	return nil
}

// Topics returns the sorted names of the topics the session is subscribed to.
func (s *Session[T, D]) Topics() []string {
	s.topicsMu.Lock()
	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	s.topicsMu.Unlock()

	sort.Strings(names)
	return names
}

func (s *Session[T, D]) addTopic(name string) {
	s.topicsMu.Lock()
	s.topics[name] = struct{}{}
	s.topicsMu.Unlock()
}

func (s *Session[T, D]) removeTopic(name string) {
	s.topicsMu.Lock()
	delete(s.topics, name)
	s.topicsMu.Unlock()
}

// takeTopics empties the reverse index and returns what it held.
func (s *Session[T, D]) takeTopics() []string {
	s.topicsMu.Lock()
	defer s.topicsMu.Unlock()

	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	s.topics = make(map[string]struct{})
	return names
}

func (s *Session[T, D]) setCloseInfo(info protocol.CloseInfo) {
	s.closeMu.Lock()
	s.closeInfo = &info
	s.closeMu.Unlock()
}

func (s *Session[T, D]) closeInfoRecorded() (protocol.CloseInfo, bool) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closeInfo == nil {
		return protocol.CloseInfo{}, false
	}
	return *s.closeInfo, true
}

// Logger returns the session's logger.
func (s *Session[T, D]) Logger() *slog.Logger {
	return s.logger
}
