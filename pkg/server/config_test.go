package server

import (
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/pubsock/pkg/codec"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig[string]()

	if cfg.Path != "/" {
		t.Errorf("Path = %q, want /", cfg.Path)
	}
	if !cfg.AllowTextFrames {
		t.Error("AllowTextFrames should default to true")
	}
	if cfg.AllowBinaryFrames || cfg.RespondWithBinaryFrame || cfg.PingPongEnabled || cfg.CloseOnException {
		t.Error("binary, respond-binary, ping-pong and close-on-exception should default to false")
	}
	if cfg.AllowedOrigins != nil || cfg.AllowedOriginPattern != "" || cfg.TLSConfig != nil {
		t.Error("origins and TLS should be unset")
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig[string]()
	if err := cfg.Validate(); !errors.Is(err, ErrDecoderMissing) {
		t.Errorf("Validate() without codec = %v, want ErrDecoderMissing", err)
	}

	cfg.WithDecoder(codec.PlainText{})
	if err := cfg.Validate(); !errors.Is(err, ErrEncoderMissing) {
		t.Errorf("Validate() without encoder = %v, want ErrEncoderMissing", err)
	}

	cfg.WithEncoder(codec.PlainText{})
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	cfg.WithAllowedOriginPattern("(")
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidOriginPattern) {
		t.Errorf("Validate() with bad pattern = %v, want ErrInvalidOriginPattern", err)
	}
}

func TestConfigClone(t *testing.T) {
	cfg := DefaultConfig[string]().WithAllowedOrigins("http://a.example")
	clone := cfg.Clone()

	clone.AllowedOrigins[0] = "http://b.example"
	clone.Path = "/other"

	if cfg.AllowedOrigins[0] != "http://a.example" {
		t.Error("Clone shares AllowedOrigins")
	}
	if cfg.Path != "/" {
		t.Error("Clone shares Path")
	}

	empty := DefaultConfig[string]().WithAllowedOrigins()
	if empty.AllowedOrigins == nil || empty.Clone().AllowedOrigins == nil {
		t.Error("empty origin list must stay non-nil through WithAllowedOrigins and Clone")
	}
	if DefaultConfig[string]().Clone().AllowedOrigins != nil {
		t.Error("nil origin list must stay nil through Clone")
	}

	var nilCfg *Config[string]
	if nilCfg.Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestConfigChaining(t *testing.T) {
	cfg := DefaultConfig[string]().
		WithPath("/ws").
		WithAllowTextFrames(false).
		WithAllowBinaryFrames(true).
		WithRespondWithBinaryFrame(true).
		WithPingPong(true).
		WithCloseOnException(true).
		WithShutdownTimeout(time.Second)

	if cfg.Path != "/ws" || cfg.AllowTextFrames || !cfg.AllowBinaryFrames ||
		!cfg.RespondWithBinaryFrame || !cfg.PingPongEnabled || !cfg.CloseOnException ||
		cfg.ShutdownTimeout != time.Second {
		t.Errorf("chained config = %+v", cfg)
	}
}

func TestShardCount(t *testing.T) {
	tests := map[int]uint32{0: 16, -1: 16, 1: 1, 3: 4, 16: 16, 17: 32}
	for in, want := range tests {
		if got := shardCount(in); got != want {
			t.Errorf("shardCount(%d) = %d, want %d", in, got, want)
		}
	}
}
