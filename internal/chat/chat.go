package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-dev/pubsock/pkg/protocol"
	"github.com/vango-dev/pubsock/pkg/server"
)

const (
	// Channel is the topic every member joins.
	Channel = "general"

	// TokenCookie carries the member token on the upgrade request.
	TokenCookie = "token"
)

// Server is the pubsock server type the chat runs on.
type Server = server.Server[string, Member]

// Session is a chat connection.
type Session = server.Session[string, Member]

// App wires chat behavior onto a Server.
type App struct {
	srv    *Server
	auth   *Authenticator
	logger *slog.Logger
}

// New returns an App. A nil logger uses slog.Default.
func New(srv *Server, auth *Authenticator, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		srv:    srv,
		auth:   auth,
		logger: logger.With("component", "chat"),
	}
}

// Register installs the chat handlers, replacing any already registered.
func (a *App) Register() *Server {
	return a.srv.
		OnUpgrade(a.upgrade).
		OnOpen(a.open).
		OnMessage(a.message).
		OnClose(a.close).
		OnError(a.sessionError)
}

func (a *App) upgrade(req *protocol.UpgradeRequest, s *Session, resp *protocol.Response) bool {
	token, ok := req.Cookie(TokenCookie)
	if !ok {
		return false
	}
	m, err := a.auth.Verify(token)
	if err != nil {
		a.logger.Debug("upgrade rejected", "remote_addr", req.RemoteAddr, "error", err)
		resp.Status = http.StatusUnauthorized
		if errors.Is(err, ErrExpiredToken) {
			resp.SetBody("token expired")
		} else {
			resp.SetBody("invalid token")
		}
		return false
	}
	if err := s.SetData(m); err != nil {
		a.logger.Error("set session data", "session_id", s.ID(), "error", err)
		resp.Status = http.StatusInternalServerError
		return false
	}
	return true
}

func (a *App) open(s *Session) {
	m, _ := s.Data()
	a.logger.Info("member connected", "member", m.Name, "session_id", s.ID())
	if err := a.srv.Subscribe(s, Channel); err != nil {
		a.logger.Warn("subscribe", "member", m.Name, "error", err)
		return
	}
	a.publish(JoinNotice(m.Name))
}

func (a *App) message(s *Session, msg string) {
	m, _ := s.Data()
	a.logger.Debug("message", "member", m.Name, "size", len(msg))
	a.publish(ChatLine(m.Name, msg))
}

func (a *App) close(s *Session, code protocol.CloseCode, reason string) {
	m, ok := s.Data()
	if !ok {
		return
	}
	a.logger.Info("member disconnected", "member", m.Name, "code", code, "reason", reason)
	a.publish(LeaveNotice(m.Name))
}

func (a *App) sessionError(s *Session, err error) {
	a.logger.Warn("session error", "session_id", s.ID(), "error", err)
}

func (a *App) publish(line string) {
	if err := a.srv.Publish(Channel, line); err != nil {
		a.logger.Error("publish", "topic", Channel, "error", err)
	}
}

// JoinNotice is published when a member connects.
func JoinNotice(name string) string {
	return fmt.Sprintf("%s just connected, say hi!", name)
}

// LeaveNotice is published when a member disconnects.
func LeaveNotice(name string) string {
	return fmt.Sprintf("%s disconnected", name)
}

// ChatLine formats a member's message for the channel.
func ChatLine(name, msg string) string {
	return name + ": " + msg
}
