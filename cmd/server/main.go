package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhandras/smln/internal/api/middleware"
	"github.com/bhandras/smln/internal/config"
	"github.com/bhandras/smln/internal/crypto"
	"github.com/bhandras/smln/internal/database"
	"github.com/bhandras/smln/internal/logger"
	"github.com/bhandras/smln/internal/store"
	"github.com/bhandras/smln/internal/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 15 * time.Second

func main() {
	overrides, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		printUsage()
		return
	}
	if err != nil {
		logger.Errorf("Invalid arguments: %v", err)
		os.Exit(2)
	}

	if err := run(overrides); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(overrides config.Overrides) error {
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("%v, using info", err)
	}
	logger.SetLevel(level)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	dialect, dsn := database.DialectSQLite, cfg.Database.Path
	if cfg.Database.Driver == config.DriverPostgres {
		dialect, dsn = database.DialectPostgres, cfg.Database.URL
	}
	logger.Infof("Opening %s database", dialect)
	db, err := database.Open(dialect, dsn, cfg.Database.ConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	creds := crypto.NewCredentials(cfg.Crypto.BcryptCost, cfg.Crypto.ScryptN)
	st := store.NewSQLStore(db, creds)

	// Dev-only: provision users from SMLN_DEV_SEED_USERS.
	if spec := os.Getenv("SMLN_DEV_SEED_USERS"); spec != "" {
		logger.Warnf("SMLN_DEV_SEED_USERS set - provisioning development users")
		if err := seedUsers(context.Background(), st, spec); err != nil {
			logger.Warnf("Failed to seed users: %v", err)
		}
	}

	hub := websocket.NewHub(st, websocket.HubConfig{
		RequestTimeout: cfg.Socket.RequestTimeout,
		WriteTimeout:   cfg.Socket.WriteTimeout,
	})
	wsServer := websocket.NewServer(hub, websocket.ServerConfig{
		PingInterval:    cfg.Socket.PingInterval,
		PongWait:        cfg.Socket.PongWait,
		WriteTimeout:    cfg.Socket.WriteTimeout,
		MaxMessageBytes: cfg.Socket.MaxMessageBytes,
		AllowedOrigins:  cfg.AllowedOrigins,
	})

	router := newRouter(cfg, hub, wsServer)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("smln server listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked sockets are invisible to http.Server; close them first.
	if err := wsServer.Shutdown(ctx); err != nil {
		logger.Warnf("WebSocket shutdown: %v", err)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newRouter(cfg *config.Config, hub *websocket.Hub, wsServer *websocket.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))
	router.Use(middleware.Logging())

	// Root endpoint - plain text for client validation
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to smln server!")
	})

	v1 := router.Group("/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, hub.Registry().Stats())
		})
		v1.GET("/updates", wsServer.HandleWebSocket)
	}
	return router
}

// parseFlags maps command-line flags onto config overrides. Flags that were
// not given stay nil so the environment wins.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("smln-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	addr := fs.String("addr", "", "Listen address, e.g. :8080")
	driver := fs.String("db-driver", "", "Database driver (sqlite|postgres)")
	dbPath := fs.String("db-path", "", "SQLite database file")
	dbURL := fs.String("db-url", "", "PostgreSQL connection URL")
	debug := fs.Bool("debug", false, "Enable debug mode")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	envFile := fs.String("env-file", ".env", "Optional .env file")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	var o config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			o.Addr = addr
		case "db-driver":
			o.DatabaseDriver = driver
		case "db-path":
			o.DatabasePath = dbPath
		case "db-url":
			o.DatabaseURL = dbURL
		case "debug":
			o.Debug = debug
		case "log-level":
			o.LogLevel = logLevel
		case "env-file":
			o.EnvFile = envFile
		}
	})
	return o, nil
}

func printUsage() {
	fmt.Println(`smln-server - real-time messaging server

Usage:
  smln-server [flags]

Flags:
  -addr string        Listen address (env ADDR, PORT)
  -db-driver string   sqlite or postgres (env DATABASE_DRIVER)
  -db-path string     SQLite file (env DATABASE_PATH)
  -db-url string      PostgreSQL URL (env DATABASE_URL)
  -debug              Debug mode (env DEBUG)
  -log-level string   trace|debug|info|warn|error (env LOG_LEVEL)
  -env-file string    .env file to load first (default ".env")

Endpoints:
  GET /             health text
  GET /v1/health    {"pending": n, "online": n}
  GET /v1/updates   WebSocket protocol endpoint`)
}
