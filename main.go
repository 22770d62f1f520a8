// Command cubecrash runs the Cube Crash game server.
//
// It supports three commands:
//  1. "serve" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "play" – plays a local board in the terminal
//
// Flags control host/port, rules directory, storage, debug logging and
// optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/taptapdesign-jimi/cube-crash/api"
	"github.com/taptapdesign-jimi/cube-crash/game/config"
	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
	"github.com/taptapdesign-jimi/cube-crash/game/session"
	"github.com/taptapdesign-jimi/cube-crash/transport/mcp"
	"github.com/taptapdesign-jimi/cube-crash/transport/tui"
	"github.com/taptapdesign-jimi/cube-crash/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Cube Crash Game Server"
)

// Background routine intervals
const (
	cleanupInterval = time.Hour
	sessionMaxAge   = 24 * time.Hour
	saveInterval    = time.Minute
	syncInterval    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// options is the resolved process configuration
type options struct {
	host        string
	port        int
	configDir   string
	data        string
	debug       bool
	ngrok       bool
	ngrokAuth   string
	ngrokDomain string
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.host, o.port)
}

// usesSQLite reports whether the data path names a SQLite database rather than a sessions directory
func (o options) usesSQLite() bool {
	ext := strings.ToLower(o.data)
	return strings.HasSuffix(ext, ".db") || strings.HasSuffix(ext, ".sqlite") || strings.HasSuffix(ext, ".sqlite3")
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "cubecrash",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing rule sets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "data", Value: "cubecrash.db", Usage: "SQLite database file, or a directory for JSON session files", Sources: cli.EnvVars("DATA_PATH")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Before: loadEnv,
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Action:  runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runMCP,
			},
			{
				Name:  "play",
				Usage: "Play a board in the terminal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "rules", Value: config.DefaultName, Usage: "Rule set to play"},
					&cli.Uint64Flag{Name: "seed", Usage: "Seed for a reproducible board (0 picks one)"},
				},
				Action: runPlay,
			},
		},
	}
}

// loadEnv loads a .env file when present so flag env sources see it
func loadEnv(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}
	return ctx, nil
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		host:        cmd.String("host"),
		port:        int(cmd.Int("port")),
		configDir:   cmd.String("config-dir"),
		data:        cmd.String("data"),
		debug:       cmd.Bool("debug"),
		ngrok:       cmd.Bool("ngrok"),
		ngrokAuth:   cmd.String("ngrok-auth"),
		ngrokDomain: cmd.String("ngrok-domain"),
	}
}

// newLogger returns a development logger in debug mode and a production logger otherwise
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// services bundles everything the commands share
type services struct {
	game     service.GameService
	sessions *session.Manager
	configs  *config.Manager
	store    session.SessionPersistence
	sqlite   *session.SQLitePersistence
	hub      *websocket.Hub
}

// Close saves live sessions and releases storage
func (s *services) Close() error {
	err := s.sessions.SaveAllSessions()
	s.sessions.Close()
	if s.sqlite != nil {
		err = errors.Join(err, s.sqlite.Close())
	}
	return err
}

// initializeServices wires rules, storage, sessions, the hub and the game service.
// Board events of every session are forwarded to the hub.
func initializeServices(opts options, logger *zap.Logger) (*services, error) {
	configManager, err := config.NewManager(opts.configDir, logger.Named("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	svc := &services{configs: configManager, hub: websocket.NewHub(logger.Named("ws"))}

	var scores service.ScoreRecorder
	if opts.usesSQLite() {
		store, err := session.NewSQLitePersistence(opts.data, logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		svc.sqlite = store
		svc.store = store
		scores = store
	} else {
		store, err := session.NewFilePersistence(opts.data)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		svc.store = store
		scores = session.NewMemoryScores()
	}

	svc.sessions = session.NewManagerWithPersistence(svc.store, configManager,
		session.WithLogger(logger.Named("session")),
		session.WithListener(svc.hub.BroadcastEvent),
	)
	if err := svc.sessions.LoadPersistedSessions(); err != nil {
		logger.Warn("failed to load persisted sessions", zap.Error(err))
	}

	svc.game = service.NewGameService(svc.sessions, configManager, scores, logger.Named("service"))
	return svc, nil
}

// newRouter mounts the REST API and the /mcp endpoint on one handler
func newRouter(svc *services, baseURL string, logger *zap.Logger) http.Handler {
	apiServer := api.NewServer(svc.game, svc.hub, logger.Named("api"))
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Warn("failed to write mcp response", zap.Error(err))
		}
	})
	return mainRouter
}

// runServe starts the HTTP server, the hub, the rules watcher and the
// maintenance routines, and stops them all on SIGINT or SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	logger, err := newLogger(opts.debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	svc, err := initializeServices(opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("shutdown save failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := opts.addr()
	router := newRouter(svc, "http://"+addr, logger)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening",
			zap.String("api", "http://"+addr+"/api"),
			zap.String("websocket", "ws://"+addr+"/ws?session=<session_id>"),
			zap.String("mcp", "http://"+addr+"/mcp"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := svc.configs.Watch(ctx, nil); err != nil {
			logger.Warn("rules hot reload disabled", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		maintenanceRoutine(ctx, svc, logger)
		return nil
	})

	g.Go(func() error {
		syncRoutine(ctx, svc.sessions, svc.store, logger)
		return nil
	})

	if opts.ngrok {
		g.Go(func() error {
			runNgrok(ctx, opts, router, logger)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// runNgrok serves the router through an ngrok tunnel until ctx is done
func runNgrok(ctx context.Context, opts options, handler http.Handler, logger *zap.Logger) {
	if opts.ngrokAuth == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if opts.ngrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.ngrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.ngrokAuth))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	ngrokURL := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", ngrokURL),
		zap.String("api", ngrokURL+"/api"),
		zap.String("mcp", ngrokURL+"/mcp"))

	go func() {
		<-ctx.Done()
		tun.Close()
	}()

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// maintenanceRoutine expires idle sessions, flushes live ones to storage and
// purges sessions the database has not seen within the retention window.
func maintenanceRoutine(ctx context.Context, svc *services, logger *zap.Logger) {
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()
	save := time.NewTicker(saveInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			if removed := svc.sessions.CleanupExpiredSessions(sessionMaxAge); removed > 0 {
				logger.Info("cleaned up expired sessions", zap.Int("count", removed))
			}
			if svc.sqlite != nil {
				purged, err := svc.sqlite.PurgeBefore(ctx, time.Now().Add(-sessionMaxAge))
				if err != nil {
					logger.Warn("purge failed", zap.Error(err))
				} else if purged > 0 {
					logger.Info("purged stored sessions", zap.Int64("count", purged))
				}
			}
		case <-save.C:
			if err := svc.sessions.SaveAllSessions(); err != nil {
				logger.Warn("periodic save failed", zap.Error(err))
			}
		}
	}
}

// syncRoutine drops sessions from memory once their stored record is gone,
// so deleting a session file or row ends it.
func syncRoutine(ctx context.Context, manager *session.Manager, store session.SessionPersistence, logger *zap.Logger) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := pruneOrphans(manager, store, logger); n > 0 {
				logger.Info("storage sync pruned orphaned sessions", zap.Int("count", n))
			}
		}
	}
}

func pruneOrphans(manager *session.Manager, store session.SessionPersistence, logger *zap.Logger) int {
	if store == nil {
		return 0
	}
	pruned := 0
	for _, sess := range manager.List() {
		if store.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			logger.Debug("pruned session from memory", zap.String("session", sess.ID))
		}
	}
	return pruned
}

// runMCP runs an MCP stdio server.
// It reuses an API already listening on --host/--port; otherwise it starts an
// internal HTTP API bound to a random loopback port and targets that.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	// stdout carries the protocol, so logs go to stderr
	logger, err := newLogger(opts.debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	externalURL := "http://" + opts.addr()
	baseURL := externalURL

	if !apiAvailable(externalURL) {
		logger.Info("no external API server found, starting internal HTTP server")

		svc, err := initializeServices(opts, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go svc.hub.Run(ctx)

		httpServer := &http.Server{Handler: api.NewServer(svc.game, svc.hub, logger.Named("api"))}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()
	}

	logger.Info("MCP stdio server ready", zap.String("api", baseURL))
	return server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())
}

// apiAvailable probes a running API server
func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runPlay plays a local board in the terminal
func runPlay(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)

	configManager, err := config.NewManager(opts.configDir, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	rules, err := configManager.LoadConfig(cmd.String("rules"))
	if err != nil {
		return err
	}

	var boardOpts []engine.Option
	if seed := cmd.Uint64("seed"); seed != 0 {
		boardOpts = append(boardOpts, engine.WithRand(engine.NewSeededRand(seed)))
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	defer screen.Fini()

	game, err := tui.NewGame(screen, rules, boardOpts...)
	if err != nil {
		return err
	}
	defer game.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return game.Run(ctx)
}
