package server

import (
	"net/http"
	"regexp"
	"slices"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// negotiator holds the built-in upgrade checks derived from one Config snapshot.
type negotiator struct {
	path    string
	origins []string // nil accepts every origin
	pattern *regexp.Regexp
	secure  bool
}

func newNegotiator[T any](cfg *Config[T]) (*negotiator, error) {
	n := &negotiator{
		path:    cfg.Path,
		origins: cfg.AllowedOrigins,
		secure:  cfg.TLSConfig != nil,
	}
	if cfg.AllowedOriginPattern != "" {
		re, err := compileOriginPattern(cfg.AllowedOriginPattern)
		if err != nil {
			return nil, err
		}
		n.pattern = re
	}
	return n, nil
}

// check runs the request, path and origin checks in order and returns the
// status of the first failure, or 0 when the request may proceed.
func (n *negotiator) check(req *protocol.UpgradeRequest) int {
	if req.Malformed || req.Method != http.MethodGet {
		return http.StatusBadRequest
	}
	if req.HeaderValue("Upgrade") != "websocket" || req.Target != n.path {
		return http.StatusBadRequest
	}

	origin := req.HeaderValue("Origin")
	hasOrigin := req.HasHeader("Origin")
	if n.pattern != nil && (!hasOrigin || !n.pattern.MatchString(origin)) {
		return http.StatusForbidden
	}
	if n.origins != nil && (!hasOrigin || !slices.Contains(n.origins, origin)) {
		return http.StatusForbidden
	}
	return 0
}

// Upgrade decides whether the connection may complete the WebSocket handshake.
// It implements protocol.Handler.
func (srv *Server[T, D]) Upgrade(id protocol.ConnID, req *protocol.UpgradeRequest, resp *protocol.Response) bool {
	rt := srv.runtime()
	s := srv.sessions.Get(id)
	if rt == nil || s == nil {
		resp.Status = http.StatusServiceUnavailable
		return false
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}

	req.Location = protocol.Location(rt.negotiator.secure, req.Host, rt.negotiator.path)

	if status := rt.negotiator.check(req); status != 0 {
		resp.Status = status
		srv.observer.UpgradeRejected(status)
		s.logger.Debug("upgrade rejected",
			"status", status,
			"method", req.Method,
			"target", req.Target,
			"origin", req.HeaderValue("Origin"))
		return false
	}

	hook := srv.onUpgrade.Load()
	if hook == nil {
		return true
	}

	resp.Status = http.StatusBadRequest
	accepted := false
	if err := srv.safeExecute(s, "upgrade", func() {
		accepted = (*hook)(req, s, resp)
	}); err != nil {
		resp.Status = http.StatusInternalServerError
		accepted = false
	}
	if !accepted {
		srv.observer.UpgradeRejected(resp.Status)
		s.logger.Debug("upgrade rejected by hook", "status", resp.Status)
	}
	return accepted
}
