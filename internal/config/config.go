package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// FileName is the default configuration file name.
	FileName = "pubsock.json"

	// DefaultHost is the default listen host.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the default WebSocket port.
	DefaultPort = 8080

	// DefaultPath is the default upgrade path.
	DefaultPath = "/"

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the complete runtime configuration.
type Config struct {
	// Host is the interface the WebSocket server binds to.
	Host string `json:"host,omitempty" env:"PUBSOCK_HOST"`

	// Port is the WebSocket port. 0 picks a free port.
	Port int `json:"port,omitempty" env:"PUBSOCK_PORT"`

	// Path is the exact request target accepted for upgrades.
	Path string `json:"path,omitempty" env:"PUBSOCK_PATH"`

	// AdminAddr is the admin HTTP listen address. Empty disables it.
	AdminAddr string `json:"adminAddr,omitempty" env:"PUBSOCK_ADMIN_ADDR"`

	AllowedOrigins       []string `json:"allowedOrigins,omitempty" env:"PUBSOCK_ALLOWED_ORIGINS" envSeparator:","`
	AllowedOriginPattern string   `json:"allowedOriginPattern,omitempty" env:"PUBSOCK_ALLOWED_ORIGIN_PATTERN"`

	AllowBinary      bool `json:"allowBinary,omitempty" env:"PUBSOCK_ALLOW_BINARY"`
	PingPong         bool `json:"pingPong,omitempty" env:"PUBSOCK_PING_PONG"`
	CloseOnException bool `json:"closeOnException,omitempty" env:"PUBSOCK_CLOSE_ON_EXCEPTION"`

	// TLSCert and TLSKey enable wss when both are set.
	TLSCert string `json:"tlsCert,omitempty" env:"PUBSOCK_TLS_CERT"`
	TLSKey  string `json:"tlsKey,omitempty" env:"PUBSOCK_TLS_KEY"`

	// TraceEndpoint is an OTLP/HTTP collector URL. Empty disables tracing export.
	TraceEndpoint string `json:"traceEndpoint,omitempty" env:"PUBSOCK_OTEL_ENDPOINT"`

	// TokenSecret signs and verifies chat session tokens.
	TokenSecret string `json:"-" env:"PUBSOCK_TOKEN_SECRET"`

	// ShutdownTimeout accepts Go duration syntax ("10s").
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" env:"PUBSOCK_SHUTDOWN_TIMEOUT"`

	Log LogConfig `json:"log,omitempty" envPrefix:"PUBSOCK_LOG_"`

	path string
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" env:"LEVEL"`

	// Format is json or text.
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// Duration is a time.Duration that reads Go duration strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts "10s" style strings or integer nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string or integer: %s", b)
		}
		*d = Duration(n)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON writes the duration in Go syntax.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalText parses Go duration syntax. Used by env parsing.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Path:            DefaultPath,
		ShutdownTimeout: Duration(DefaultShutdownTimeout),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path if it exists, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := New()
	if path != "" {
		if err := cfg.readFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads path, which must exist. Environment is not consulted.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.path = path
	return nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// File returns the path the configuration was read from, if any.
func (c *Config) File() string {
	return c.path
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port must be between 0 and 65535, got %d", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("config: path must start with /, got %q", c.Path)
	}
	if c.AllowedOriginPattern != "" {
		if _, err := regexp.Compile(c.AllowedOriginPattern); err != nil {
			return fmt.Errorf("config: allowed origin pattern: %w", err)
		}
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("config: tls cert and key must be set together")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Address returns host:port for the WebSocket listener.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
