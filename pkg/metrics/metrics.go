// Package metrics exports server activity as Prometheus metrics.
//
// Metrics collected (namespace "pubsock" by default):
//   - pubsock_connections_total: Counter of accepted connections
//   - pubsock_active_sessions: Gauge of registered sessions
//   - pubsock_sessions_opened_total: Counter of completed handshakes
//   - pubsock_sessions_closed_total: Counter of closed sessions by close code
//   - pubsock_upgrade_rejections_total: Counter of rejected upgrades by status
//   - pubsock_messages_received_total: Counter of inbound data frames by kind
//   - pubsock_received_bytes_total: Counter of inbound payload bytes by kind
//   - pubsock_messages_sent_total: Counter of outbound data frames by kind
//   - pubsock_sent_bytes_total: Counter of outbound payload bytes by kind
//   - pubsock_publish_recipients: Histogram of recipients per publish or broadcast
//   - pubsock_connection_errors_total: Counter of per-connection failures by type
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	cfg := server.DefaultConfig[string]().
//	    WithCodec(codec.PlainText{}).
//	    WithObserver(metrics.New(metrics.WithRegistry(reg)))
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/pubsock/pkg/protocol"
	"github.com/vango-dev/pubsock/pkg/server"
)

// Config configures the Prometheus observer.
type Config struct {
	// Namespace is the metrics namespace (default: "pubsock").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for publish recipients.
	// Default: 0, 1, 2, 5, 10 ... 10000
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus observer.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "pubsock",
		Buckets:   []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Observer implements server.Observer with Prometheus metrics.
type Observer struct {
	connections       prometheus.Counter
	activeSessions    prometheus.Gauge
	opened            prometheus.Counter
	closed            *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	bytesReceived     *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	bytesSent         *prometheus.CounterVec
	publishRecipients prometheus.Histogram
	connectionErrors  *prometheus.CounterVec
}

var _ server.Observer = (*Observer)(nil)

// New creates an Observer and registers its metrics.
// It panics if the metrics are already registered with the registry.
func New(opts ...Option) *Observer {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Observer{
		connections: counter("connections_total", "Total number of accepted connections"),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of registered sessions",
			ConstLabels: config.ConstLabels,
		}),
		opened:           counter("sessions_opened_total", "Total number of completed WebSocket handshakes"),
		closed:           counterVec("sessions_closed_total", "Total number of closed sessions by close code", "code"),
		rejections:       counterVec("upgrade_rejections_total", "Total number of rejected upgrades by HTTP status", "status"),
		messagesReceived: counterVec("messages_received_total", "Total number of inbound data frames", "kind"),
		bytesReceived:    counterVec("received_bytes_total", "Total inbound payload bytes", "kind"),
		messagesSent:     counterVec("messages_sent_total", "Total number of outbound data frames", "kind"),
		bytesSent:        counterVec("sent_bytes_total", "Total outbound payload bytes", "kind"),
		publishRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "publish_recipients",
			Help:        "Number of sessions a published or broadcast message was queued for",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		connectionErrors: counterVec("connection_errors_total", "Total per-connection failures by type", "type"),
	}
}

// SessionConnected implements server.Observer.
func (o *Observer) SessionConnected() {
	o.connections.Inc()
	o.activeSessions.Inc()
}

// SessionOpened implements server.Observer.
func (o *Observer) SessionOpened() {
	o.opened.Inc()
}

// SessionClosed implements server.Observer.
func (o *Observer) SessionClosed(code protocol.CloseCode) {
	o.activeSessions.Dec()
	o.closed.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// UpgradeRejected implements server.Observer.
func (o *Observer) UpgradeRejected(status int) {
	o.rejections.WithLabelValues(strconv.Itoa(status)).Inc()
}

// MessageReceived implements server.Observer.
func (o *Observer) MessageReceived(kind protocol.FrameKind, size int) {
	label := kindLabel(kind)
	o.messagesReceived.WithLabelValues(label).Inc()
	o.bytesReceived.WithLabelValues(label).Add(float64(size))
}

// MessageSent implements server.Observer.
func (o *Observer) MessageSent(kind protocol.FrameKind, size int) {
	label := kindLabel(kind)
	o.messagesSent.WithLabelValues(label).Inc()
	o.bytesSent.WithLabelValues(label).Add(float64(size))
}

// Published implements server.Observer.
func (o *Observer) Published(recipients int) {
	o.publishRecipients.Observe(float64(recipients))
}

// ConnectionError implements server.Observer.
func (o *Observer) ConnectionError(kind string) {
	o.connectionErrors.WithLabelValues(kind).Inc()
}

// kindLabel keeps the label set bounded.
func kindLabel(kind protocol.FrameKind) string {
	switch kind {
	case protocol.FrameText:
		return "text"
	case protocol.FrameBinary:
		return "binary"
	default:
		return "other"
	}
}
