package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/pubsock/internal/admin"
	"github.com/vango-dev/pubsock/internal/chat"
	"github.com/vango-dev/pubsock/internal/config"
	"github.com/vango-dev/pubsock/internal/telemetry"
	"github.com/vango-dev/pubsock/pkg/codec"
	"github.com/vango-dev/pubsock/pkg/metrics"
	"github.com/vango-dev/pubsock/pkg/server"
	"github.com/vango-dev/pubsock/pkg/transport/wsnet"
)

func serveCmd() *cobra.Command {
	var (
		port      int
		host      string
		path      string
		adminAddr string
		secret    string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Long: `Run the WebSocket chat server.

Members connect to the configured path with a token cookie issued by
"pubsock token", join the "general" topic and see every message
published there.

Examples:
  pubsock serve
  pubsock serve --port=9000 --path=/chat
  pubsock serve --admin=127.0.0.1:9090 --log-format=json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Apply command-line overrides
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("host") {
				cfg.Host = host
			}
			if flags.Changed("path") {
				cfg.Path = path
			}
			if flags.Changed("admin") {
				cfg.AdminAddr = adminAddr
			}
			if flags.Changed("secret") {
				cfg.TokenSecret = secret
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.Log), cmd)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "WebSocket port")
	cmd.Flags().StringVarP(&host, "host", "H", config.DefaultHost, "Host to bind to")
	cmd.Flags().StringVar(&path, "path", config.DefaultPath, "Upgrade path")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "Admin HTTP address (disabled when empty)")
	cmd.Flags().StringVar(&secret, "secret", "", "Token signing secret (default from PUBSOCK_TOKEN_SECRET)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd *cobra.Command) error {
	d, err := startDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	success(out, "Listening on %s%s", d.wsURL(cfg), cfg.Path)
	if d.adminLn != nil {
		info(out, "Admin on http://%s", d.adminLn.Addr())
	}

	<-ctx.Done()
	info(out, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()
	return d.shutdown(shutdownCtx)
}

// daemon holds everything "serve" starts.
type daemon struct {
	srv      *chat.Server
	registry *prometheus.Registry
	admin    *http.Server
	adminLn  net.Listener
	traces   func(context.Context) error
	logger   *slog.Logger
}

func startDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("token secret is required (set PUBSOCK_TOKEN_SECRET or --secret)")
	}
	auth, err := chat.NewAuthenticator([]byte(cfg.TokenSecret))
	if err != nil {
		return nil, err
	}

	tp, traces, err := telemetry.Setup(ctx, "pubsock", cfg.TraceEndpoint)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	scfg, err := serverConfig(cfg, logger, metrics.New(metrics.WithRegistry(reg)))
	if err != nil {
		_ = traces(ctx)
		return nil, err
	}
	scfg.WithTracerProvider(tp)

	srv := chat.New(server.New[string, chat.Member](scfg), auth, logger).Register()
	if err := srv.ListenAddr(cfg.Address()); err != nil {
		_ = traces(ctx)
		return nil, err
	}

	d := &daemon{srv: srv, registry: reg, traces: traces, logger: logger}
	if cfg.AdminAddr != "" {
		if err := d.startAdmin(cfg.AdminAddr); err != nil {
			_ = d.shutdown(ctx)
			return nil, err
		}
	}
	return d, nil
}

func serverConfig(cfg *config.Config, logger *slog.Logger, obs server.Observer) (*server.Config[string], error) {
	scfg := server.DefaultConfig[string]().
		WithPath(cfg.Path).
		WithCodec(codec.PlainText{}).
		WithAllowBinaryFrames(cfg.AllowBinary).
		WithPingPong(cfg.PingPong).
		WithCloseOnException(cfg.CloseOnException).
		WithShutdownTimeout(cfg.ShutdownTimeout.Std()).
		WithObserver(obs).
		WithLogger(logger)

	if len(cfg.AllowedOrigins) > 0 {
		scfg.WithAllowedOrigins(cfg.AllowedOrigins...)
	}
	if cfg.AllowedOriginPattern != "" {
		scfg.WithAllowedOriginPattern(cfg.AllowedOriginPattern)
	}
	if cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		scfg.WithTLS(&tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	wcfg := wsnet.DefaultConfig()
	wcfg.Logger = logger
	scfg.WithTransport(wsnet.New(wcfg))

	return scfg, scfg.Validate()
}

func (d *daemon) startAdmin(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", addr, err)
	}
	d.adminLn = ln
	d.admin = &http.Server{
		Handler: admin.NewRouter(admin.FromServer(d.srv), admin.Options{
			Gatherer: d.registry,
			Logger:   d.logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("admin server", "error", err)
		}
	}()
	return nil
}

func (d *daemon) wsURL(cfg *config.Config) string {
	scheme := "ws"
	if cfg.TLSEnabled() {
		scheme = "wss"
	}
	return scheme + "://" + d.srv.Addr().String()
}

func (d *daemon) shutdown(ctx context.Context) error {
	var errs []error
	if d.admin != nil {
		if err := d.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
	}
	if d.srv.IsRunning() {
		if err := d.srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.traces(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	return errors.Join(errs...)
}
