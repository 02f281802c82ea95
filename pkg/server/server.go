package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pubsock/pkg/protocol"
	"github.com/vango-dev/pubsock/pkg/transport/wsnet"
)

// Handler types. Each event has at most one handler; registering again
// replaces the previous one and registering nil removes it.
type (
	// UpgradeHandler may veto an upgrade that passed the built-in checks.
	// resp starts as 400 Bad Request and is sent verbatim on rejection;
	// on acceptance its headers are added to the handshake response.
	// The session data may be set here and only here.
	UpgradeHandler[T, D any] func(req *protocol.UpgradeRequest, s *Session[T, D], resp *protocol.Response) bool

	// OpenHandler is called once the handshake has completed.
	OpenHandler[T, D any] func(s *Session[T, D])

	// MessageHandler is called with every decoded message.
	MessageHandler[T, D any] func(s *Session[T, D], msg T)

	// CloseHandler is called once per opened session with the close code
	// and reason, either from the peer's close frame or from the disconnect.
	CloseHandler[T, D any] func(s *Session[T, D], code protocol.CloseCode, reason string)

	// ErrorHandler is called for every per-connection failure.
	ErrorHandler[T, D any] func(s *Session[T, D], err error)
)

// Server is an embeddable WebSocket server with topic based publish/subscribe.
// T is the application message type, D the per-connection data type.
type Server[T, D any] struct {
	// Lifecycle, guarded by mu. mu is never held while connections are
	// torn down, so handlers may call back into the server.
	mu       sync.Mutex
	config   *Config[T]
	stopping bool
	running  atomic.Bool
	rt       atomic.Pointer[runState[T]]

	sessions *SessionManager[T, D]
	topics   *TopicRegistry[T, D]

	onUpgrade atomic.Pointer[UpgradeHandler[T, D]]
	onOpen    atomic.Pointer[OpenHandler[T, D]]
	onMessage atomic.Pointer[MessageHandler[T, D]]
	onClose   atomic.Pointer[CloseHandler[T, D]]
	onError   atomic.Pointer[ErrorHandler[T, D]]

	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// runState is the configuration snapshot and transport of one Listen.
type runState[T any] struct {
	cfg        *Config[T]
	negotiator *negotiator
	transport  protocol.Transport
	ln         net.Listener
	served     chan error
}

var _ protocol.Handler = (*Server[string, struct{}])(nil)

// New creates a stopped Server. A nil config is replaced by DefaultConfig;
// the codec must still be set before Listen.
// Logger, Observer, TracerProvider and the shard counts are read here once.
func New[T, D any](config *Config[T]) *Server[T, D] {
	if config == nil {
		config = DefaultConfig[T]()
	}
	config = config.Clone()
	config.applyDefaults()

	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	logger := config.Logger.With("component", "server")

	return &Server[T, D]{
		config:   config,
		sessions: NewSessionManager[T, D](config.SessionShards, config.Logger),
		topics:   NewTopicRegistry[T, D](config.TopicShards, config.Logger),
		observer: observer,
		tracer:   newTracer(config.TracerProvider),
		logger:   logger,
	}
}

// Config returns a copy of the current configuration.
func (srv *Server[T, D]) Config() *Config[T] {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.config.Clone()
}

// Configure applies fn to the configuration. It fails while the server runs.
func (srv *Server[T, D]) Configure(fn func(*Config[T])) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.running.Load() || srv.stopping {
		return ErrAlreadyRunning
	}
	fn(srv.config)
	return nil
}

// OnUpgrade registers the upgrade handler.
func (srv *Server[T, D]) OnUpgrade(h UpgradeHandler[T, D]) *Server[T, D] {
	if h == nil {
		srv.onUpgrade.Store(nil)
	} else {
		srv.onUpgrade.Store(&h)
	}
	return srv
}

// OnOpen registers the open handler.
func (srv *Server[T, D]) OnOpen(h OpenHandler[T, D]) *Server[T, D] {
	if h == nil {
		srv.onOpen.Store(nil)
	} else {
		srv.onOpen.Store(&h)
	}
	return srv
}

// OnMessage registers the message handler.
func (srv *Server[T, D]) OnMessage(h MessageHandler[T, D]) *Server[T, D] {
	if h == nil {
		srv.onMessage.Store(nil)
	} else {
		srv.onMessage.Store(&h)
	}
	return srv
}

// OnClose registers the close handler.
func (srv *Server[T, D]) OnClose(h CloseHandler[T, D]) *Server[T, D] {
	if h == nil {
		srv.onClose.Store(nil)
	} else {
		srv.onClose.Store(&h)
	}
	return srv
}

// OnError registers the error handler.
func (srv *Server[T, D]) OnError(h ErrorHandler[T, D]) *Server[T, D] {
	if h == nil {
		srv.onError.Store(nil)
	} else {
		srv.onError.Store(&h)
	}
	return srv
}

// Listen starts the server on the given TCP port of all interfaces.
// Port 0 picks a free port; see Addr.
func (srv *Server[T, D]) Listen(port int) error {
	return srv.ListenAddr(net.JoinHostPort("", strconv.Itoa(port)))
}

// ListenAddr starts the server on addr. The listener is bound before
// ListenAddr returns and the server reports running only once it is.
func (srv *Server[T, D]) ListenAddr(addr string) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.running.Load() || srv.stopping {
		return ErrAlreadyRunning
	}

	cfg := srv.config.Clone()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	neg, err := newNegotiator(cfg)
	if err != nil {
		return err
	}

	transport := cfg.Transport
	if transport == nil {
		transport = wsnet.New(wsnet.Config{Logger: cfg.Logger})
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	if cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, cfg.TLSConfig)
	}

	rt := &runState[T]{
		cfg:        cfg,
		negotiator: neg,
		transport:  transport,
		ln:         ln,
		served:     make(chan error, 1),
	}
	srv.rt.Store(rt)
	srv.running.Store(true)

	go srv.serve(rt)

	srv.logger.Info("server listening",
		"addr", ln.Addr().String(),
		"path", cfg.Path,
		"tls", cfg.TLSConfig != nil)
	return nil
}

func (srv *Server[T, D]) serve(rt *runState[T]) {
	err := rt.transport.Serve(rt.ln, srv)
	if err != nil && !errors.Is(err, protocol.ErrTransportClosed) {
		srv.logger.Error("transport stopped", "error", err)
	}
	rt.served <- err
}

// Addr returns the bound listener address, or nil when stopped.
func (srv *Server[T, D]) Addr() net.Addr {
	if !srv.running.Load() {
		return nil
	}
	return srv.rt.Load().ln.Addr()
}

// IsRunning reports whether the server is accepting connections.
func (srv *Server[T, D]) IsRunning() bool {
	return srv.running.Load()
}

// Stop shuts the server down, waiting at most ShutdownTimeout for
// connections to close before closing them forcibly.
func (srv *Server[T, D]) Stop() error {
	rt := srv.rt.Load()
	if rt == nil {
		return ErrNotRunning
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Shutdown stops accepting connections, closes every connection with 1001
// going away and waits for them to be torn down. Connections still open
// when ctx expires are closed forcibly. The session and topic registries
// are empty when Shutdown returns. A Shutdown already in progress makes
// further calls fail with ErrNotRunning.
func (srv *Server[T, D]) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	if !srv.running.Load() || srv.stopping {
		srv.mu.Unlock()
		return ErrNotRunning
	}
	srv.stopping = true
	rt := srv.rt.Load()
	srv.mu.Unlock()

	srv.logger.Info("server shutting down", "sessions", srv.sessions.Count())

	err := rt.transport.Shutdown(ctx)

	for _, s := range srv.sessions.Clear() {
		srv.teardown(s, protocol.CloseInfo{Code: protocol.CloseGoingAway})
	}
	srv.topics.UnsubscribeAll()

	select {
	case <-rt.served:
	case <-ctx.Done():
	}

	srv.mu.Lock()
	srv.running.Store(false)
	srv.stopping = false
	srv.mu.Unlock()

	if err != nil {
		srv.logger.Warn("server shutdown incomplete", "error", err)
		return fmt.Errorf("server: shutdown: %w", err)
	}
	srv.logger.Info("server stopped")
	return nil
}

func (srv *Server[T, D]) runtime() *runState[T] {
	return srv.rt.Load()
}

// encode encodes msg with the running encoder and picks the frame kind.
func (srv *Server[T, D]) encode(msg T) (protocol.FrameKind, []byte, error) {
	rt := srv.runtime()
	if rt == nil {
		return 0, nil, ErrNotRunning
	}
	payload, err := rt.cfg.Encoder.Encode(msg)
	if err != nil {
		return 0, nil, err
	}
	if rt.cfg.RespondWithBinaryFrame {
		return protocol.FrameBinary, payload, nil
	}
	return protocol.FrameText, payload, nil
}

// Subscribe adds s to topic. See TopicRegistry.Subscribe.
func (srv *Server[T, D]) Subscribe(s *Session[T, D], topic string) error {
	return srv.topics.Subscribe(s, topic)
}

// Unsubscribe removes s from topic. See TopicRegistry.Unsubscribe.
func (srv *Server[T, D]) Unsubscribe(s *Session[T, D], topic string) error {
	return srv.topics.Unsubscribe(s, topic)
}

// IsSubscribed reports whether s is subscribed to topic.
func (srv *Server[T, D]) IsSubscribed(s *Session[T, D], topic string) bool {
	return srv.topics.IsSubscribed(s, topic)
}

// UnsubscribeAllTopics removes every topic.
func (srv *Server[T, D]) UnsubscribeAllTopics() {
	srv.topics.UnsubscribeAll()
}

// Topics returns the sorted names of all topics with at least one subscriber.
func (srv *Server[T, D]) Topics() []string {
	return srv.topics.Topics()
}

// Subscribers returns the number of sessions subscribed to topic.
func (srv *Server[T, D]) Subscribers(topic string) int {
	return srv.topics.Count(topic)
}

// Publish sends msg to every current subscriber of topic. Publishing to a
// topic without subscribers does nothing. msg is encoded once; a failed
// send to one subscriber does not stop delivery to the others.
func (srv *Server[T, D]) Publish(topic string, msg T) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	subscribers := srv.topics.Subscribers(topic)
	if len(subscribers) == 0 {
		return nil
	}

	span := srv.startPublishSpan("pubsock.publish", topic)
	defer span.End()

	kind, payload, err := srv.encode(msg)
	if err != nil {
		err = fmt.Errorf("server: publish to %q: encode: %w", topic, err)
		recordSpanError(span, err)
		return err
	}

	delivered := srv.fanOut(subscribers, kind, payload)
	span.SetAttributes(attribute.Int("pubsock.recipients", delivered))
	srv.observer.Published(delivered)
	return nil
}

// Broadcast sends msg to every open session, subscribed or not.
func (srv *Server[T, D]) Broadcast(msg T) error {
	if !srv.running.Load() {
		return ErrNotRunning
	}

	span := srv.startPublishSpan("pubsock.broadcast", "")
	defer span.End()

	kind, payload, err := srv.encode(msg)
	if err != nil {
		err = fmt.Errorf("server: broadcast: encode: %w", err)
		recordSpanError(span, err)
		return err
	}

	delivered := srv.fanOut(srv.sessions.Snapshot(), kind, payload)
	span.SetAttributes(attribute.Int("pubsock.recipients", delivered))
	srv.observer.Published(delivered)
	return nil
}

// fanOut queues payload on every open session and returns how many accepted it.
func (srv *Server[T, D]) fanOut(sessions []*Session[T, D], kind protocol.FrameKind, payload []byte) int {
	delivered := 0
	for _, s := range sessions {
		if s.State() != StateOpen {
			continue
		}
		if err := s.sendRaw(kind, payload); err != nil {
			s.logger.Debug("fan-out send failed", "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// ConnectedSessions returns a snapshot of the registered sessions.
func (srv *Server[T, D]) ConnectedSessions() []*Session[T, D] {
	return srv.sessions.Snapshot()
}

// Session returns the registered session with the given identity, or nil.
func (srv *Server[T, D]) Session(id protocol.ConnID) *Session[T, D] {
	return srv.sessions.Get(id)
}

// Stats is a point-in-time summary of the server.
type Stats struct {
	Running  bool
	Sessions ManagerStats
	Topics   int
}

// Stats returns a point-in-time summary of the server.
func (srv *Server[T, D]) Stats() Stats {
	return Stats{
		Running:  srv.running.Load(),
		Sessions: srv.sessions.Stats(),
		Topics:   len(srv.topics.Topics()),
	}
}
