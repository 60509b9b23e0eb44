package multiplayer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPetNotFound is returned by a PetStore that does not know the pet.
	ErrPetNotFound = errors.New("pet not found")

	// ErrPetNotOwned is returned when the pet belongs to another player.
	ErrPetNotOwned = errors.New("pet belongs to another player")
)

// PetStore loads authoritative pet snapshots.
// This allows the coordinator to read pet state without depending on the storage package.
type PetStore interface {
	LoadPetSnapshot(ctx context.Context, owner PlayerID, id PetID) (PetSnapshot, error)
}

// ResultSaver persists finished battles. Called once per finished session.
type ResultSaver interface {
	SaveBattleResult(ctx context.Context, result BattleResult) error
}

// BattleResult contains battle outcome data for persistence.
type BattleResult struct {
	MatchID    MatchID
	WinnerID   PlayerID
	LoserID    PlayerID
	GoldEarned int
	ExpEarned  int
	Reason     string
	Turns      int
	Duration   time.Duration
}
