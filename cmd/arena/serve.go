package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pet-arena/internal/multiplayer"
	"github.com/vovakirdan/pet-arena/internal/platform/web"
	"github.com/vovakirdan/pet-arena/internal/storage"
)

var (
	flagAddr     string
	flagLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the arena websocket server",
	Long: `Start the HTTP server that accepts websocket connections at the
configured path (default /ws) and runs matchmaking and battles.

Finished battles and rewards are written to the SQLite database.
If the database cannot be opened the server still runs without persistence.

Endpoints:
  GET /ws          - websocket upgrade
  GET /api/online  - current presence list as JSON
  GET /healthz     - liveness check

Examples:
  arena serve                       # Listen on :8080
  arena serve --addr :9000          # Listen on port 9000
  arena serve --db ./arena.db       # Use specific database
  arena serve --log-level debug     # Log every routed message`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}

	logger := newLogger(cfg.Log.Level)
	logger.Info("config loaded", "source", cfg.Source)

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Warn("could not open arena database", "error", err)
		// Continue without storage
		store = nil
	}

	coord := multiplayer.NewCoordinator(cfg.CoordinatorConfig(), logger.WithPrefix("coordinator"))
	if store != nil {
		coord.SetPetStore(store)
		coord.SetResultSaver(store)
	}
	if err := coord.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting coordinator: %v\n", err)
		os.Exit(1)
	}

	server := web.NewServer(web.ServerConfig{
		Address:        cfg.Server.Addr,
		WSPath:         cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadLimit:      cfg.Server.ReadLimit,
		WriteTimeout:   cfg.Server.WriteTimeout,
		SendBuffer:     cfg.Server.SendBuffer,
	}, coord, logger.WithPrefix("web"))

	serveErr := server.ListenAndServe()

	coord.Stop()
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("could not close arena database", "error", err)
		}
	}

	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", serveErr)
		os.Exit(1)
	}
	logger.Info("stopped")
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "arena",
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
