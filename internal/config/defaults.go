package config

import (
	_ "embed"
	"time"
)

//go:embed defaults/arena.yaml
var defaultArenaYAML []byte

// Default returns the hardcoded arena configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			WSPath:       "/ws",
			ReadLimit:    4096,
			WriteTimeout: 10 * time.Second,
			SendBuffer:   64,
		},
		Matchmaking: MatchmakingConfig{
			BattleStartDelay: time.Second,
		},
		Battle: BattleConfig{
			DamageCaps: map[string]int{
				"ATTACK": 100,
				"SKILL":  200,
				"DEFEND": 0,
				"HEAL":   0,
			},
			RewardGold: 100,
			RewardExp:  50,
		},
		Liveness: LivenessConfig{
			Interval:        30 * time.Second,
			MaxMissedProbes: 2,
		},
		Storage: StorageConfig{
			DBPath: "~/.arena/arena.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Source: "builtin",
	}
}

// DefaultYAML returns the embedded default YAML.
func DefaultYAML() []byte {
	return defaultArenaYAML
}
