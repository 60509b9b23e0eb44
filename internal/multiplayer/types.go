// Package multiplayer implements the realtime matchmaking and battle session engine.
// It owns the connection registry, the matchmaking queue and the authoritative
// battle sessions, and is driven by transport-neutral events.
package multiplayer

import "fmt"

// PlayerID is the stable identity of a player, supplied at join time.
type PlayerID int64

// PetID identifies the pet a player brings into battle.
type PetID int64

// ConnID uniquely identifies one live transport connection.
// A player reconnecting gets a new ConnID but keeps its PlayerID.
type ConnID string

// MatchID uniquely identifies a battle session. Never reused.
type MatchID string

// Status is the matchmaking status of a registered player.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSearching Status = "searching"
	StatusBattling  Status = "battling"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusSearching, StatusBattling:
		return true
	default:
		return false
	}
}

// ActionType is the kind of battle action a participant declares.
type ActionType string

const (
	ActionAttack ActionType = "ATTACK"
	ActionSkill  ActionType = "SKILL"
	ActionDefend ActionType = "DEFEND"
	ActionHeal   ActionType = "HEAL"
)

// ParseActionType validates a wire action type.
func ParseActionType(s string) (ActionType, error) {
	switch a := ActionType(s); a {
	case ActionAttack, ActionSkill, ActionDefend, ActionHeal:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// PetSnapshot is the pet state captured when a player joins.
type PetSnapshot struct {
	PetID     PetID
	Name      string
	Level     int
	Health    int
	MaxHealth int
}

// normalized clamps health into [0, MaxHealth] with MaxHealth at least 1.
func (s PetSnapshot) normalized() PetSnapshot {
	if s.MaxHealth < 1 {
		s.MaxHealth = 1
	}
	s.Health = max(0, min(s.Health, s.MaxHealth))
	if s.Level < 1 {
		s.Level = 1
	}
	return s
}

// Player is the registry record for one joined player.
// Owned by the Registry; other components refer to players by PlayerID.
type Player struct {
	ID     PlayerID
	Pet    PetSnapshot
	Conn   Conn
	Status Status

	// Match is set only while Status is StatusBattling.
	Match MatchID
}

// Summary returns the wire summary of the player.
func (p *Player) Summary() PlayerSummary {
	return PlayerSummary{
		UserID:  p.ID,
		PetID:   p.Pet.PetID,
		PetName: p.Pet.Name,
		Level:   p.Pet.Level,
		HP:      p.Pet.Health,
		MaxHP:   p.Pet.MaxHealth,
	}
}
