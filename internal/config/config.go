// Package config provides YAML-based configuration loading for the arena server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/pet-arena/internal/multiplayer"
)

// Config contains all configuration for the arena server.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Battle      BattleConfig      `yaml:"battle"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`

	// Source is where the config was loaded from. Not serialized.
	Source string `yaml:"-"`
}

// ServerConfig defines the HTTP and websocket transport.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	WSPath         string        `yaml:"ws_path"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // Empty allows any origin
	ReadLimit      int64         `yaml:"read_limit"`      // Max inbound frame size in bytes
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SendBuffer     int           `yaml:"send_buffer"` // Outbound messages queued per connection
}

// MatchmakingConfig defines queue and pairing behavior.
type MatchmakingConfig struct {
	BattleStartDelay time.Duration `yaml:"battle_start_delay"`
}

// BattleConfig defines damage caps and rewards.
type BattleConfig struct {
	DamageCaps map[string]int `yaml:"damage_caps"` // Keyed by action type, e.g. ATTACK
	RewardGold int            `yaml:"reward_gold"`
	RewardExp  int            `yaml:"reward_exp"`
}

// LivenessConfig defines the connection probe cycle.
type LivenessConfig struct {
	Interval        time.Duration `yaml:"interval"`
	MaxMissedProbes int           `yaml:"max_missed_probes"`
}

// StorageConfig defines where the SQLite database lives.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path must start with /, got %q", c.Server.WSPath))
	}
	if c.Server.ReadLimit <= 0 {
		errs = append(errs, errors.New("server.read_limit must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	if c.Server.SendBuffer < 1 {
		errs = append(errs, errors.New("server.send_buffer must be at least 1"))
	}
	if c.Matchmaking.BattleStartDelay < 0 {
		errs = append(errs, errors.New("matchmaking.battle_start_delay cannot be negative"))
	}
	for action, limit := range c.Battle.DamageCaps {
		if _, err := multiplayer.ParseActionType(action); err != nil {
			errs = append(errs, fmt.Errorf("battle.damage_caps: %w", err))
		}
		if limit < 0 {
			errs = append(errs, fmt.Errorf("battle.damage_caps.%s cannot be negative", action))
		}
	}
	if c.Battle.RewardGold < 0 || c.Battle.RewardExp < 0 {
		errs = append(errs, errors.New("battle rewards cannot be negative"))
	}
	if c.Liveness.Interval <= 0 {
		errs = append(errs, errors.New("liveness.interval must be positive"))
	}
	if c.Liveness.MaxMissedProbes < 1 {
		errs = append(errs, errors.New("liveness.max_missed_probes must be at least 1"))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// CoordinatorConfig converts the file settings into the coordinator's configuration.
func (c Config) CoordinatorConfig() multiplayer.CoordinatorConfig {
	cfg := multiplayer.DefaultCoordinatorConfig()

	limits := make(multiplayer.DamageLimits, len(c.Battle.DamageCaps))
	for action, limit := range c.Battle.DamageCaps {
		limits[multiplayer.ActionType(action)] = limit
	}
	cfg.DamageLimits = limits
	cfg.Rewards = multiplayer.FlatRewards(c.Battle.RewardGold, c.Battle.RewardExp)
	cfg.BattleStartDelay = c.Matchmaking.BattleStartDelay
	cfg.LivenessInterval = c.Liveness.Interval
	cfg.MaxMissedProbes = c.Liveness.MaxMissedProbes
	return cfg
}
