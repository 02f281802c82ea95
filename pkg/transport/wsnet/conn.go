package wsnet

import (
	"log/slog"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// maxCloseReason keeps a close frame within the 125 byte control frame limit.
const maxCloseReason = 123

type outFrame struct {
	kind    protocol.FrameKind
	payload []byte
	code    protocol.CloseCode
	reason  string
}

// conn is one accepted connection and its outbound queue.
// It implements protocol.Sender.
type conn struct {
	id      protocol.ConnID
	netConn net.Conn
	t       *Transport
	logger  *slog.Logger

	mu      sync.Mutex
	ws      *websocket.Conn
	queue   *queue.Queue // of outFrame, guarded by mu
	closing bool         // close frame queued
	closed  bool
	close   *protocol.CloseInfo

	signal     chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
	writerDone chan struct{}
}

func newConn(id protocol.ConnID, nc net.Conn, t *Transport) *conn {
	return &conn{
		id:         id,
		netConn:    nc,
		t:          t,
		logger:     t.logger.With("conn_id", string(id), "remote_addr", nc.RemoteAddr().String()),
		queue:      queue.New(),
		signal:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// attach binds the upgraded websocket and starts the writer.
func (c *conn) attach(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	go c.writeLoop(ws)
}

func (c *conn) upgraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Send queues a data, ping or pong frame.
func (c *conn) Send(kind protocol.FrameKind, payload []byte) error {
	switch kind {
	case protocol.FrameText, protocol.FrameBinary, protocol.FramePing, protocol.FramePong:
	default:
		return protocol.ErrUnsupportedKind
	}

	c.mu.Lock()
	switch {
	case c.ws == nil:
		c.mu.Unlock()
		return protocol.ErrNotUpgraded
	case c.closing || c.closed:
		c.mu.Unlock()
		return protocol.ErrConnClosed
	}
	c.queue.Add(outFrame{kind: kind, payload: payload})
	c.mu.Unlock()

	c.wake()
	return nil
}

// Close queues a close frame; the connection is closed once it is written.
// Frames queued earlier are written first.
func (c *conn) Close(code protocol.CloseCode, reason string) error {
	reason = truncateReason(reason)

	c.mu.Lock()
	switch {
	case c.ws == nil:
		c.mu.Unlock()
		return protocol.ErrNotUpgraded
	case c.closing || c.closed:
		c.mu.Unlock()
		return protocol.ErrConnClosed
	}
	c.closing = true
	c.close = &protocol.CloseInfo{Code: code, Reason: reason}
	c.queue.Add(outFrame{kind: protocol.FrameClose, code: code, reason: reason})
	c.mu.Unlock()

	c.wake()
	return nil
}

// truncateReason shortens reason to maxCloseReason bytes on a rune boundary.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}

func (c *conn) sentClose() (protocol.CloseInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.close == nil {
		return protocol.CloseInfo{}, false
	}
	return *c.close, true
}

func (c *conn) wake() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *conn) next() (outFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Length() == 0 {
		return outFrame{}, false
	}
	return c.queue.Remove().(outFrame), true
}

// writeLoop is the only writer of ws.
func (c *conn) writeLoop(ws *websocket.Conn) {
	defer close(c.writerDone)

	for {
		select {
		case <-c.stop:
			return
		case <-c.signal:
		}

		for {
			f, ok := c.next()
			if !ok {
				break
			}
			if err := c.write(ws, f); err != nil {
				c.logger.Debug("write failed", "kind", f.kind.String(), "error", err)
				_ = c.netConn.Close()
				return
			}
			if f.kind == protocol.FrameClose {
				_ = c.netConn.Close()
				return
			}
		}
	}
}

func (c *conn) write(ws *websocket.Conn, f outFrame) error {
	deadline := time.Now().Add(c.t.config.WriteTimeout)
	switch f.kind {
	case protocol.FrameClose:
		msg := websocket.FormatCloseMessage(int(f.code), f.reason)
		return ws.WriteControl(websocket.CloseMessage, msg, deadline)
	case protocol.FramePing, protocol.FramePong:
		return ws.WriteControl(int(f.kind), f.payload, deadline)
	default:
		if err := ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return ws.WriteMessage(int(f.kind), f.payload)
	}
}

// finish stops the writer and closes the network connection. Frames still
// queued are dropped.
func (c *conn) finish() {
	c.mu.Lock()
	c.closed = true
	upgraded := c.ws != nil
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	_ = c.netConn.Close()
	if upgraded {
		<-c.writerDone
	}
}
