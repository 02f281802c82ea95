package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/vango-dev/pubsock/pkg/codec"
	"github.com/vango-dev/pubsock/pkg/protocol"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the configuration of a Server for message type T.
// A snapshot is taken when the server starts; later changes have no effect
// until the next Listen.
type Config[T any] struct {
	// Path is the request target a WebSocket upgrade must use, compared
	// byte for byte with the raw request-target.
	// Default: "/".
	Path string

	// Frames

	// AllowTextFrames delivers text frames to the message handler.
	// Default: true.
	AllowTextFrames bool

	// AllowBinaryFrames delivers binary frames to the message handler.
	// Default: false.
	AllowBinaryFrames bool

	// RespondWithBinaryFrame sends outbound messages as binary frames
	// instead of text frames.
	// Default: false.
	RespondWithBinaryFrame bool

	// PingPongEnabled answers ping frames with a pong carrying the same
	// payload. When disabled pings are dropped.
	// Default: false.
	PingPongEnabled bool

	// CloseOnException closes a connection after a protocol violation,
	// a codec failure or a handler panic on it.
	// Default: false.
	CloseOnException bool

	// Origins

	// AllowedOrigins is the exact list of accepted Origin header values.
	// Nil accepts every origin; an empty non-nil list accepts none.
	AllowedOrigins []string

	// AllowedOriginPattern is a regular expression the whole Origin header
	// must match. Empty accepts every origin.
	AllowedOriginPattern string

	// TLSConfig enables TLS on the listener and selects the wss scheme.
	// Default: nil.
	TLSConfig *tls.Config

	// Codec

	// Encoder converts outbound messages to payloads. Required.
	Encoder codec.Encoder[T]

	// Decoder converts inbound payloads to messages. Required.
	Decoder codec.Decoder[T]

	// Server lifecycle

	// ShutdownTimeout bounds how long Stop waits for connections to close
	// before closing them forcibly.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// SessionShards is the number of lock shards of the session registry.
	// Rounded up to a power of two.
	// Default: 16. Read once by New.
	SessionShards int

	// TopicShards is the number of lock shards of the topic registry.
	// Rounded up to a power of two.
	// Default: 16. Read once by New.
	TopicShards int

	// Collaborators

	// Transport accepts connections and speaks the wire protocol.
	// Default: a new net/http + gorilla/websocket transport (package wsnet)
	// for every Listen. A custom transport must support Serve after Shutdown
	// or be replaced through Server.Configure before the next Listen.
	Transport protocol.Transport

	// Observer receives lifecycle and traffic notifications.
	// Default: none. Read once by New.
	Observer Observer

	// TracerProvider creates the tracer for message and publish spans.
	// Default: the global OpenTelemetry provider. Read once by New.
	TracerProvider trace.TracerProvider

	// Logger is the base logger.
	// Default: slog.Default(). Read once by New.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the documented defaults and no codec.
func DefaultConfig[T any]() *Config[T] {
	return &Config[T]{
		Path:            "/",
		AllowTextFrames: true,
		ShutdownTimeout: 10 * time.Second,
		SessionShards:   16,
		TopicShards:     16,
	}
}

// Clone returns a copy of the Config. Slices are copied; collaborators are shared.
func (c *Config[T]) Clone() *Config[T] {
	if c == nil {
		return nil
	}
	clone := *c
	clone.AllowedOrigins = slices.Clone(c.AllowedOrigins)
	if c.TLSConfig != nil {
		clone.TLSConfig = c.TLSConfig.Clone()
	}
	return &clone
}

// Validate reports the first configuration error that prevents a start.
func (c *Config[T]) Validate() error {
	if c.Decoder == nil {
		return ErrDecoderMissing
	}
	if c.Encoder == nil {
		return ErrEncoderMissing
	}
	if c.AllowedOriginPattern != "" {
		if _, err := compileOriginPattern(c.AllowedOriginPattern); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults fills zero-valued lifecycle fields.
func (c *Config[T]) applyDefaults() {
	defaults := DefaultConfig[T]()
	if c.Path == "" {
		c.Path = defaults.Path
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.SessionShards <= 0 {
		c.SessionShards = defaults.SessionShards
	}
	if c.TopicShards <= 0 {
		c.TopicShards = defaults.TopicShards
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// compileOriginPattern anchors pattern so it must match the whole origin.
func compileOriginPattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOriginPattern, err)
	}
	return re, nil
}

// WithPath sets the upgrade path and returns the config for chaining.
func (c *Config[T]) WithPath(path string) *Config[T] {
	c.Path = path
	return c
}

// WithCodec sets both encoder and decoder and returns the config for chaining.
func (c *Config[T]) WithCodec(cd codec.Codec[T]) *Config[T] {
	c.Encoder = cd
	c.Decoder = cd
	return c
}

// WithEncoder sets the encoder and returns the config for chaining.
func (c *Config[T]) WithEncoder(enc codec.Encoder[T]) *Config[T] {
	c.Encoder = enc
	return c
}

// WithDecoder sets the decoder and returns the config for chaining.
func (c *Config[T]) WithDecoder(dec codec.Decoder[T]) *Config[T] {
	c.Decoder = dec
	return c
}

// WithAllowTextFrames sets AllowTextFrames and returns the config for chaining.
func (c *Config[T]) WithAllowTextFrames(allow bool) *Config[T] {
	c.AllowTextFrames = allow
	return c
}

// WithAllowBinaryFrames sets AllowBinaryFrames and returns the config for chaining.
func (c *Config[T]) WithAllowBinaryFrames(allow bool) *Config[T] {
	c.AllowBinaryFrames = allow
	return c
}

// WithRespondWithBinaryFrame sets RespondWithBinaryFrame and returns the config for chaining.
func (c *Config[T]) WithRespondWithBinaryFrame(binary bool) *Config[T] {
	c.RespondWithBinaryFrame = binary
	return c
}

// WithPingPong sets PingPongEnabled and returns the config for chaining.
func (c *Config[T]) WithPingPong(enabled bool) *Config[T] {
	c.PingPongEnabled = enabled
	return c
}

// WithCloseOnException sets CloseOnException and returns the config for chaining.
func (c *Config[T]) WithCloseOnException(close bool) *Config[T] {
	c.CloseOnException = close
	return c
}

// WithAllowedOrigins sets the exact origin list and returns the config for chaining.
// Calling it with no origins rejects every origin; set AllowedOrigins to nil
// to accept all again.
func (c *Config[T]) WithAllowedOrigins(origins ...string) *Config[T] {
	if origins == nil {
		origins = []string{}
	}
	c.AllowedOrigins = origins
	return c
}

// WithAllowedOriginPattern sets the origin pattern and returns the config for chaining.
func (c *Config[T]) WithAllowedOriginPattern(pattern string) *Config[T] {
	c.AllowedOriginPattern = pattern
	return c
}

// WithTLS sets the TLS configuration and returns the config for chaining.
func (c *Config[T]) WithTLS(cfg *tls.Config) *Config[T] {
	c.TLSConfig = cfg
	return c
}

// WithTransport sets the transport and returns the config for chaining.
func (c *Config[T]) WithTransport(t protocol.Transport) *Config[T] {
	c.Transport = t
	return c
}

// WithObserver sets the observer and returns the config for chaining.
func (c *Config[T]) WithObserver(o Observer) *Config[T] {
	c.Observer = o
	return c
}

// WithTracerProvider sets the tracer provider and returns the config for chaining.
func (c *Config[T]) WithTracerProvider(tp trace.TracerProvider) *Config[T] {
	c.TracerProvider = tp
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config[T]) WithLogger(logger *slog.Logger) *Config[T] {
	c.Logger = logger
	return c
}

// WithShutdownTimeout sets the shutdown timeout and returns the config for chaining.
func (c *Config[T]) WithShutdownTimeout(d time.Duration) *Config[T] {
	c.ShutdownTimeout = d
	return c
}
