// arena runs the realtime pet-battle matchmaking server.
//
// Usage:
//
//	arena serve              - Start the websocket battle server
//	arena matches            - Show recently finished battles
//	arena pet set|show       - Seed or inspect a stored pet
//	arena config             - Print the effective configuration
//
// Global flags:
//
//	--config <path> - Config file (default search: ~/.arena/config.yaml, ./configs/arena.yaml)
//	--db <path>     - Override the database path from the config
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pet-arena/internal/config"
)

var (
	// Global flags
	flagConfigPath string
	flagDBPath     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Pet Arena - realtime pet battles over websockets",
	Long: `Pet Arena pairs players from a matchmaking queue and runs their
realtime battles, streaming every action to both sides.

Available commands:
  serve    - Start the websocket battle server
  matches  - Show recently finished battles
  pet      - Seed or inspect a stored pet
  config   - Print the effective configuration

Examples:
  arena serve
  arena serve --addr :9000 --log-level debug
  arena matches --limit 5
  arena pet set 10 --owner 1 --name Fluffy --hp 100
  arena config --config ./configs/arena.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to arena database (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(petCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads the config file and applies global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return cfg, err
	}
	if flagDBPath != "" {
		cfg.Storage.DBPath = flagDBPath
	}
	return cfg, nil
}
