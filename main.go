// Command mindmeld runs the mindmeld party-game server.
//
// It supports three modes:
//  1. "server" (default) – runs the HTTP server exposing the REST API, the
//     WebSocket endpoint and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server, reusing a running API server or
//     starting an internal one
//  3. "validate" – checks the configuration and prints the effective values
//
// Configuration is read from an optional YAML file, then MINDMELD_*
// environment variables (a .env file is loaded first), then flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mindmeld/api"
	"github.com/wricardo/mindmeld/config"
	"github.com/wricardo/mindmeld/game/service"
	"github.com/wricardo/mindmeld/game/session"
	"github.com/wricardo/mindmeld/logging"
	"github.com/wricardo/mindmeld/transport/mcp"
	"github.com/wricardo/mindmeld/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "mindmeld"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "party-game session server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging and echo messages"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
			&cli.BoolFlag{Name: "ngrok", Usage: "Expose the server through an ngrok tunnel"},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run the HTTP server with REST API, WebSocket and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp"},
				Usage:   "Run an MCP stdio server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "api-url",
						Usage: "REST API to proxy; an internal server is started when none is reachable",
					},
				},
				Action: runStdioMCP,
			},
			{
				Name:   "validate",
				Usage:  "Check the configuration and print the effective values",
				Action: runValidate,
			},
		},
	}
}

// loadConfig merges the configuration sources; flags win.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	// Load .env file if it exists; variables already set are kept
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	if cmd.IsSet("debug") {
		cfg.Debug = cmd.Bool("debug")
	}
	if cfg.Debug {
		cfg.Log.Level = "debug"
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("ngrok") {
		cfg.Ngrok.Enabled = cmd.Bool("ngrok")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runValidate prints the merged configuration with secrets redacted.
func runValidate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	effective := *cfg
	if effective.Ngrok.AuthToken != "" {
		effective.Ngrok.AuthToken = "<redacted>"
	}
	out, err := yaml.Marshal(&effective)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = cmd.Root().Writer.Write(out)
	return err
}

// runServer starts the HTTP server and blocks until SIGINT or SIGTERM.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.WithFields(logrus.Fields{
		"version": Version,
		"addr":    cfg.Addr(),
	}).Infof("Starting %s", AppName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	if err := newApp(cfg, logger).run(ctx, ln); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// app holds the wired server components.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *session.Registry
	service  service.GameService
	hub      *websocket.Hub
	api      *api.Server
}

func newApp(cfg *config.Config, logger *logrus.Logger) *app {
	rules, timeouts := cfg.Rules(), cfg.Timeouts()
	registry := session.NewRegistry(session.Options{
		Rules:           &rules,
		Timeouts:        &timeouts,
		MaxCodeAttempts: cfg.Game.MaxCodeAttempts,
		Logger:          logger,
	})
	gameService := service.NewGameService(registry, logger)
	hub := websocket.NewHub(websocket.HubOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	wsHandler := websocket.NewHandler(hub, gameService, logger, cfg.Debug)

	return &app{
		cfg:      cfg,
		log:      logger,
		registry: registry,
		service:  gameService,
		hub:      hub,
		api:      api.NewServer(gameService, wsHandler, logger),
	}
}

// run serves on ln until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	baseURL := localURL(ln.Addr())
	a.api.MountMCP(mcp.NewClient(baseURL).HTTPHandler())

	httpServer := &http.Server{
		Handler:      a.api,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(ctx)
	})

	g.Go(func() error {
		return a.registry.Run(ctx, a.cfg.Game.ReapInterval)
	})

	g.Go(func() error {
		a.log.WithFields(logrus.Fields{
			"rest":      baseURL + "/api",
			"websocket": "ws" + baseURL[len("http"):] + "/api/games/join",
			"mcp":       baseURL + "/mcp",
		}).Info("HTTP server listening")

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("Shutting down")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if a.cfg.Ngrok.Enabled {
		g.Go(func() error {
			return a.serveNgrok(ctx)
		})
	}

	return g.Wait()
}

// serveNgrok exposes the API through an ngrok tunnel. Tunnel failures are
// logged and do not stop the local server.
func (a *app) serveNgrok(ctx context.Context) error {
	cfg := a.cfg.Ngrok
	if cfg.AuthToken == "" {
		a.log.Warn("Ngrok enabled but no auth token provided (set " + config.EnvPrefix + "NGROK_AUTHTOKEN)")
		return nil
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		a.log.WithError(err).Error("Failed to start ngrok tunnel")
		return nil
	}

	a.log.WithField("url", tun.URL()).Info("Ngrok tunnel established")

	srv := &http.Server{Handler: a.api}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.WithError(err).Warn("Ngrok server error")
	}
	a.log.Info("Ngrok tunnel closed")
	return nil
}

// localURL turns a listener address into a URL this process can call.
func localURL(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String()
	}
	host := tcp.IP
	if host == nil || host.IsUnspecified() {
		host = net.IPv4(127, 0, 0, 1)
	}
	return "http://" + net.JoinHostPort(host.String(), fmt.Sprint(tcp.Port))
}

// runStdioMCP runs an MCP stdio server. It proxies to --api-url, or to the
// configured address when a server answers there; otherwise it starts an
// internal server on a loopback port. Logs go to stderr because stdout
// carries the protocol.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	baseURL := cmd.String("api-url")
	if baseURL == "" {
		external := "http://" + cfg.Addr()
		if apiAvailable(ctx, external) {
			logger.WithField("url", external).Info("Using external API server for MCP")
			baseURL = external
		}
	}

	if baseURL == "" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		internal := *cfg
		internal.Ngrok.Enabled = false

		ctx, cancel := context.WithCancel(ctx)
		errc := make(chan error, 1)
		go func() {
			errc <- newApp(&internal, logger).run(ctx, ln)
		}()
		defer func() {
			cancel()
			if err := <-errc; err != nil {
				logger.WithError(err).Warn("Internal HTTP server error")
			}
		}()

		baseURL = localURL(ln.Addr())
		logger.WithField("url", baseURL).Info("Started internal HTTP server for MCP")
	}

	logger.Info("MCP stdio server ready")
	return mcp.NewClient(baseURL).ServeStdio()
}

// apiAvailable reports whether a mindmeld API answers at baseURL.
func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
