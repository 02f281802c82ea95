package wsnet

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// Config configures a Transport.
type Config struct {
	// ReadBufferSize and WriteBufferSize size the gorilla I/O buffers.
	// Default: 4096.
	ReadBufferSize  int
	WriteBufferSize int

	// HandshakeTimeout bounds reading the request headers and the handshake.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds every frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize is the largest inbound message in bytes; 0 means no limit.
	// Larger messages close the connection with 1009.
	MaxMessageSize int64

	// EnableCompression negotiates permessage-deflate.
	EnableCompression bool

	// Logger is the base logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Transport serves WebSocket connections with net/http and gorilla/websocket.
type Transport struct {
	config   Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu         sync.Mutex
	handler    protocol.Handler
	httpServer *http.Server
	conns      map[protocol.ConnID]*conn
	byNet      map[net.Conn]*conn
	closed     bool

	// Upgraded connections, which net/http no longer tracks.
	wg sync.WaitGroup
}

var _ protocol.Transport = (*Transport)(nil)

type connKey struct{}

// forceCloseWait bounds the wait for read loops after Shutdown closes their
// connections. A handler that never returns keeps its goroutine alive.
const forceCloseWait = time.Second

// New creates a Transport.
func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		config: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			// Origins are checked by the handler before the handshake.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: cfg.Logger.With("component", "wsnet"),
		conns:  make(map[protocol.ConnID]*conn),
		byNet:  make(map[net.Conn]*conn),
	}
}

// Serve accepts connections on ln until Shutdown. It returns
// protocol.ErrTransportClosed after Shutdown.
func (t *Transport) Serve(ln net.Listener, h protocol.Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = ln.Close()
		return protocol.ErrTransportClosed
	}
	t.handler = h
	t.httpServer = &http.Server{
		Handler:           t,
		ReadHeaderTimeout: t.config.HandshakeTimeout,
		ConnContext:       t.connContext,
		ConnState:         t.connState,
		ErrorLog:          slog.NewLogLogger(t.logger.Handler(), slog.LevelDebug),
		// HTTP/2 has no upgrade mechanism.
		TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
	}
	srv := t.httpServer
	t.mu.Unlock()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return protocol.ErrTransportClosed
	}
	return err
}

// connContext runs in the accept loop for every new connection.
func (t *Transport) connContext(ctx context.Context, nc net.Conn) context.Context {
	c := newConn(protocol.ConnID(uuid.NewString()), nc, t)

	t.mu.Lock()
	t.conns[c.id] = c
	t.byNet[nc] = c
	t.mu.Unlock()

	t.handler.Connected(c.id, c)
	return context.WithValue(ctx, connKey{}, c)
}

// connState reports connections that close without an upgrade.
func (t *Transport) connState(nc net.Conn, state http.ConnState) {
	switch state {
	case http.StateHijacked:
		t.mu.Lock()
		delete(t.byNet, nc)
		t.mu.Unlock()
	case http.StateClosed:
		t.mu.Lock()
		c, ok := t.byNet[nc]
		if ok {
			delete(t.byNet, nc)
			delete(t.conns, c.id)
		}
		t.mu.Unlock()
		if ok {
			t.handler.Disconnected(c.id, protocol.AbnormalClosure())
		}
	}
}

// ServeHTTP negotiates the upgrade and then runs the read loop of the
// connection until it is gone.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, _ := r.Context().Value(connKey{}).(*conn)
	if c == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	req := &protocol.UpgradeRequest{
		Method:     r.Method,
		Target:     r.RequestURI,
		Host:       r.Host,
		Header:     r.Header.Clone(),
		RemoteAddr: r.RemoteAddr,
	}
	resp := protocol.BadRequest()
	if !t.handler.Upgrade(c.id, req, resp) {
		writeRejection(w, resp)
		return
	}

	// Only reaches the peer if gorilla refuses the handshake.
	w.Header().Set("Connection", "close")

	ws, err := t.upgrader.Upgrade(w, r, resp.Header)
	if err != nil {
		c.logger.Debug("handshake failed", "error", err)
		return
	}
	if t.config.MaxMessageSize > 0 {
		ws.SetReadLimit(t.config.MaxMessageSize)
	}

	t.wg.Add(1)
	defer t.wg.Done()

	c.attach(ws)
	t.handler.Opened(c.id)
	info := t.readLoop(c, ws)
	c.finish()

	t.mu.Lock()
	delete(t.conns, c.id)
	t.mu.Unlock()

	t.handler.Disconnected(c.id, info)
}

// readLoop dispatches frames until the connection fails and returns the
// best available close information.
func (t *Transport) readLoop(c *conn, ws *websocket.Conn) protocol.CloseInfo {
	ws.SetPingHandler(func(data string) error {
		t.handler.Frame(c.id, protocol.NewFrame(protocol.FramePing, []byte(data)))
		return nil
	})
	ws.SetPongHandler(func(data string) error {
		t.handler.Frame(c.id, protocol.NewFrame(protocol.FramePong, []byte(data)))
		return nil
	})
	ws.SetCloseHandler(func(code int, text string) error {
		t.handler.Frame(c.id, protocol.NewCloseFrame(protocol.CloseCode(code), text))
		return nil
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return protocol.CloseInfo{Code: protocol.CloseCode(ce.Code), Reason: ce.Text}
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				// gorilla has already sent the 1009 close frame.
				return protocol.CloseInfo{Code: protocol.CloseMessageTooBig}
			}
			if info, ok := c.sentClose(); ok {
				return info
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Debug("read failed", "error", err)
			}
			return protocol.AbnormalClosure()
		}
		t.handler.Frame(c.id, protocol.NewFrame(protocol.FrameKind(kind), data))
	}
}

// Shutdown stops accepting, sends 1001 going away on every upgraded
// connection and waits for all of them to be torn down. When ctx expires
// the remaining connections are closed forcibly and ctx.Err is returned.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	srv := t.httpServer
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		if c.upgraded() {
			_ = c.Close(protocol.CloseGoingAway, "server shutdown")
		}
	}

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.logger.Warn("forcing connections closed", "connections", t.activeCount())
		t.mu.Lock()
		for _, c := range t.conns {
			_ = c.netConn.Close()
		}
		t.mu.Unlock()
		select {
		case <-done:
		case <-time.After(forceCloseWait):
			t.logger.Warn("connections still tearing down after forced close", "connections", t.activeCount())
		}
		err = ctx.Err()
	}
	return err
}

func (t *Transport) activeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func writeRejection(w http.ResponseWriter, resp *protocol.Response) {
	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set("Connection", "close")
	if len(resp.Body) > 0 && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}
