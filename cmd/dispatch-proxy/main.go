package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"dispatch-proxy-go/internal/client"
	"dispatch-proxy-go/internal/config"
	"dispatch-proxy-go/internal/event"
	"dispatch-proxy-go/internal/handler"
	"dispatch-proxy-go/internal/metrics"
	"dispatch-proxy-go/internal/middleware"
	"dispatch-proxy-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cli struct {
	config.CLI `embed:""`

	Version kong.VersionFlag `help:"Print version and exit."`

	Serve  serveCmd  `cmd:"" default:"1" help:"Run the HTTP dispatcher (default)."`
	Invoke invokeCmd `cmd:"" help:"Dispatch one function event and print the reply as JSON."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("dispatch-proxy"),
		kong.Description("Path-prefix dispatching reverse proxy and redirector."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)
	ctx.FatalIfErrorf(ctx.Run(&c.CLI))
}

type serveCmd struct{}

func (serveCmd) Run(flags *config.CLI) error {
	fx.New(
		appOptions(flags),
		fx.Provide(newEcho),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, warnRouteGaps, startServer),
	).Run()
	return nil
}

type invokeCmd struct {
	Event string `arg:"" optional:"" help:"Event JSON file; reads stdin when omitted or '-'."`
}

func (cmd *invokeCmd) Run(flags *config.CLI) error {
	in, err := cmd.open()
	if err != nil {
		return err
	}
	defer in.Close()

	var invokeErr error
	app := fx.New(
		appOptions(flags),
		// stdout carries the reply.
		fx.Decorate(func(cfg *config.Config) *config.Config {
			out := *cfg
			out.Log.Output = "stderr"
			return &out
		}),
		fx.Invoke(warnRouteGaps),
		fx.Invoke(func(cfg *config.Config, d *service.Dispatcher) {
			a := event.Adapter{FunctionPrefix: cfg.Event.FunctionPrefix}
			invokeErr = a.Invoke(context.Background(), d, in, os.Stdout)
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	return invokeErr
}

func (cmd *invokeCmd) open() (io.ReadCloser, error) {
	if cmd.Event == "" || cmd.Event == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(cmd.Event)
	if err != nil {
		return nil, fmt.Errorf("open event: %w", err)
	}
	return f, nil
}

// appOptions wires the components shared by every command.
func appOptions(flags *config.CLI) fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			func() *config.CLI { return flags },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			(*config.Config).RouteTable,
			client.NewUpstreamClient,
			service.NewDispatcher,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
	)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stdout
	if cfg.Log.Output == "stderr" {
		w = os.Stderr
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// No write timeout: the upstream client timeout bounds each response.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.StripHopByHop())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func warnRouteGaps(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnGaps(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server",
				"addr", addr,
				"routes", len(cfg.Routes),
				"config", cfg.FilePath(),
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
