// Package admin serves the operator HTTP endpoints of a running pubsock
// process: health, Prometheus metrics and JSON views of sessions and topics.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/pubsock/pkg/protocol"
	"github.com/vango-dev/pubsock/pkg/server"
)

// Source is the read-only view of a server the admin endpoints expose.
type Source interface {
	Stats() server.Stats
	Topics() []string
	Subscribers(topic string) int
	Sessions() []SessionInfo
	SessionInfo(id protocol.ConnID) (SessionInfo, bool)
}

// SessionInfo describes one connection.
type SessionInfo struct {
	ID            protocol.ConnID `json:"id"`
	State         string          `json:"state"`
	ConnectedAt   time.Time       `json:"connected_at"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	Topics        []string        `json:"topics"`
}

// TopicInfo describes one topic.
type TopicInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// FromServer adapts srv to a Source.
func FromServer[T, D any](srv *server.Server[T, D]) Source {
	return serverSource[T, D]{srv}
}

type serverSource[T, D any] struct {
	*server.Server[T, D]
}

func (s serverSource[T, D]) Sessions() []SessionInfo {
	sessions := s.ConnectedSessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, describe(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (s serverSource[T, D]) SessionInfo(id protocol.ConnID) (SessionInfo, bool) {
	sess := s.Session(id)
	if sess == nil {
		return SessionInfo{}, false
	}
	return describe(sess), true
}

func describe[T, D any](s *server.Session[T, D]) SessionInfo {
	info := SessionInfo{
		ID:          s.ID(),
		State:       s.State().String(),
		ConnectedAt: s.ConnectedAt(),
		Topics:      s.Topics(),
	}
	if at, ok := s.LastMessageAt(); ok {
		info.LastMessageAt = &at
	}
	if info.Topics == nil {
		info.Topics = []string{}
	}
	return info
}

// Options configures the admin router.
type Options struct {
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger receives one line per request. Defaults to slog.Default.
	Logger *slog.Logger
}

// NewRouter returns the admin HTTP handler.
func NewRouter(src Source, opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handlers{src: src}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger.With("component", "admin")))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/topics", h.topics)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.sessions)
		r.Get("/{id}", h.session)
	})
	return r
}

type handlers struct {
	src Source
}

type healthResponse struct {
	Status   string              `json:"status"`
	Sessions server.ManagerStats `json:"sessions"`
	Topics   int                 `json:"topics"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	stats := h.src.Stats()
	resp := healthResponse{Status: "ok", Sessions: stats.Sessions, Topics: stats.Topics}
	status := http.StatusOK
	if !stats.Running {
		resp.Status = "stopped"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *handlers) topics(w http.ResponseWriter, r *http.Request) {
	names := h.src.Topics()
	out := make([]TopicInfo, 0, len(names))
	for _, name := range names {
		out = append(out, TopicInfo{Name: name, Subscribers: h.src.Subscribers(name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Sessions())
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	id := protocol.ConnID(chi.URLParam(r, "id"))
	info, ok := h.src.SessionInfo(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
