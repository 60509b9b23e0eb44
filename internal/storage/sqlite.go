// Package storage provides SQLite-based persistence for pet snapshots,
// finished battles and the rewards credited to winners.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/pet-arena/internal/multiplayer"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// PetRecord is the stored state of one pet.
type PetRecord struct {
	PetID     int64
	OwnerID   int64
	Name      string
	Level     int
	HP        int
	MaxHP     int
	UpdatedAt time.Time
}

// BattleRecord is one finished realtime battle.
type BattleRecord struct {
	ID         int64
	MatchID    string
	WinnerID   int64
	LoserID    int64
	GoldEarned int
	ExpEarned  int
	EndReason  string // "knockout", "surrender", "disconnect", "timeout"
	Turns      int
	DurationMs int64
	CreatedAt  time.Time
}

// RewardRecord holds the running totals credited to a player.
type RewardRecord struct {
	PlayerID int64
	Gold     int
	Exp      int
	Wins     int
	Losses   int
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	// SQLite allows a single writer; background result writes share one connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pets (
			pet_id INTEGER PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			level INTEGER NOT NULL DEFAULT 1,
			hp INTEGER NOT NULL,
			max_hp INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_pets_owner ON pets(owner_id);

		CREATE TABLE IF NOT EXISTS battle_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL UNIQUE,
			winner_id INTEGER NOT NULL,
			loser_id INTEGER NOT NULL,
			gold_earned INTEGER NOT NULL DEFAULT 0,
			exp_earned INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL,
			turns INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_battle_results_winner ON battle_results(winner_id);
		CREATE INDEX IF NOT EXISTS idx_battle_results_loser ON battle_results(loser_id);

		CREATE TABLE IF NOT EXISTS player_rewards (
			player_id INTEGER PRIMARY KEY,
			gold INTEGER NOT NULL DEFAULT 0,
			exp INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertPet inserts or replaces a pet.
func (s *Store) UpsertPet(ctx context.Context, pet PetRecord) error {
	if pet.MaxHP < 1 {
		return fmt.Errorf("storage: pet %d: max hp must be positive", pet.PetID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pets (pet_id, owner_id, name, level, hp, max_hp, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(pet_id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   name = excluded.name,
		   level = excluded.level,
		   hp = excluded.hp,
		   max_hp = excluded.max_hp,
		   updated_at = CURRENT_TIMESTAMP`,
		pet.PetID, pet.OwnerID, pet.Name, pet.Level, pet.HP, pet.MaxHP,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save pet: %w", err)
	}
	return nil
}

// Pet retrieves a pet by id. Returns nil if the pet does not exist.
func (s *Store) Pet(ctx context.Context, petID int64) (*PetRecord, error) {
	var pet PetRecord
	var updatedAt any

	err := s.db.QueryRowContext(ctx,
		`SELECT pet_id, owner_id, name, level, hp, max_hp, updated_at
		 FROM pets
		 WHERE pet_id = ?`,
		petID,
	).Scan(&pet.PetID, &pet.OwnerID, &pet.Name, &pet.Level, &pet.HP, &pet.MaxHP, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query pet: %w", err)
	}

	pet.UpdatedAt = parseTimestamp(updatedAt)
	return &pet, nil
}

// LoadPetSnapshot implements multiplayer.PetStore.
// A pet stored under a different owner is reported as multiplayer.ErrPetNotOwned.
func (s *Store) LoadPetSnapshot(ctx context.Context, owner multiplayer.PlayerID, id multiplayer.PetID) (multiplayer.PetSnapshot, error) {
	pet, err := s.Pet(ctx, int64(id))
	if err != nil {
		return multiplayer.PetSnapshot{}, err
	}
	if pet == nil {
		return multiplayer.PetSnapshot{}, multiplayer.ErrPetNotFound
	}
	if pet.OwnerID != int64(owner) {
		return multiplayer.PetSnapshot{}, multiplayer.ErrPetNotOwned
	}
	return multiplayer.PetSnapshot{
		PetID:     multiplayer.PetID(pet.PetID),
		Name:      pet.Name,
		Level:     pet.Level,
		Health:    pet.HP,
		MaxHealth: pet.MaxHP,
	}, nil
}

// SaveBattleResult implements multiplayer.ResultSaver.
// The result row and both players' reward totals are written in one transaction.
func (s *Store) SaveBattleResult(ctx context.Context, result multiplayer.BattleResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: cannot begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO battle_results
		 (match_id, winner_id, loser_id, gold_earned, exp_earned, end_reason, turns, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(result.MatchID),
		int64(result.WinnerID),
		int64(result.LoserID),
		result.GoldEarned,
		result.ExpEarned,
		result.Reason,
		result.Turns,
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save battle result: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO player_rewards (player_id, gold, exp, wins, losses)
		 VALUES (?, ?, ?, 1, 0)
		 ON CONFLICT(player_id) DO UPDATE SET
		   gold = gold + excluded.gold,
		   exp = exp + excluded.exp,
		   wins = wins + 1`,
		int64(result.WinnerID), result.GoldEarned, result.ExpEarned,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot credit winner: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO player_rewards (player_id, losses)
		 VALUES (?, 1)
		 ON CONFLICT(player_id) DO UPDATE SET losses = losses + 1`,
		int64(result.LoserID),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot record loss: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: cannot commit battle result: %w", err)
	}
	return nil
}

// Ensure Store implements the coordinator's collaborators.
var (
	_ multiplayer.PetStore    = (*Store)(nil)
	_ multiplayer.ResultSaver = (*Store)(nil)
)

// RecentBattles retrieves the most recent finished battles.
func (s *Store) RecentBattles(ctx context.Context, limit int) ([]BattleRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, match_id, winner_id, loser_id, gold_earned, exp_earned,
		        end_reason, turns, duration_ms, created_at
		 FROM battle_results
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query battles: %w", err)
	}
	defer rows.Close()

	var records []BattleRecord
	for rows.Next() {
		var r BattleRecord
		var createdAt any
		if err := rows.Scan(
			&r.ID,
			&r.MatchID,
			&r.WinnerID,
			&r.LoserID,
			&r.GoldEarned,
			&r.ExpEarned,
			&r.EndReason,
			&r.Turns,
			&r.DurationMs,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		r.CreatedAt = parseTimestamp(createdAt)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return records, nil
}

// PlayerRewards returns the totals credited to a player.
// A player with no finished battles gets a zero record.
func (s *Store) PlayerRewards(ctx context.Context, playerID int64) (RewardRecord, error) {
	r := RewardRecord{PlayerID: playerID}
	err := s.db.QueryRowContext(ctx,
		`SELECT gold, exp, wins, losses FROM player_rewards WHERE player_id = ?`,
		playerID,
	).Scan(&r.Gold, &r.Exp, &r.Wins, &r.Losses)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("storage: cannot query rewards: %w", err)
	}
	return r, nil
}

// parseTimestamp handles both time.Time and string values from the driver.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
