package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pet-arena/internal/storage"
)

var (
	flagPetOwner int64
	flagPetName  string
	flagPetLevel int
	flagPetHP    int
	flagPetMaxHP int
)

var petCmd = &cobra.Command{
	Use:   "pet",
	Short: "Seed or inspect stored pets",
	Long: `Manage the pet snapshots the server uses on PLAYER_JOIN.
A stored pet overrides the stats a client declares when joining.`,
}

var petSetCmd = &cobra.Command{
	Use:   "set <pet-id>",
	Short: "Create or update a pet",
	Long: `Create or update a stored pet.

Examples:
  arena pet set 10 --owner 1 --name Fluffy --level 5 --hp 100
  arena pet set 10 --owner 1 --name Fluffy --level 6 --hp 80 --max-hp 120`,
	Args: cobra.ExactArgs(1),
	Run:  runPetSet,
}

var petShowCmd = &cobra.Command{
	Use:   "show <pet-id>",
	Short: "Show a stored pet",
	Args:  cobra.ExactArgs(1),
	Run:   runPetShow,
}

func init() {
	petSetCmd.Flags().Int64Var(&flagPetOwner, "owner", 0, "Owner player id")
	petSetCmd.Flags().StringVar(&flagPetName, "name", "", "Pet name")
	petSetCmd.Flags().IntVar(&flagPetLevel, "level", 1, "Pet level")
	petSetCmd.Flags().IntVar(&flagPetHP, "hp", 100, "Current health")
	petSetCmd.Flags().IntVar(&flagPetMaxHP, "max-hp", 0, "Maximum health (defaults to --hp)")
	_ = petSetCmd.MarkFlagRequired("owner")
	_ = petSetCmd.MarkFlagRequired("name")

	petCmd.AddCommand(petSetCmd)
	petCmd.AddCommand(petShowCmd)
}

func parsePetID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid pet id %q\n", arg)
		os.Exit(1)
	}
	return id
}

func openStore() *storage.Store {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening arena database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runPetSet(_ *cobra.Command, args []string) {
	id := parsePetID(args[0])
	maxHP := flagPetMaxHP
	if maxHP == 0 {
		maxHP = flagPetHP
	}

	store := openStore()
	defer store.Close()

	pet := storage.PetRecord{
		PetID:   id,
		OwnerID: flagPetOwner,
		Name:    flagPetName,
		Level:   flagPetLevel,
		HP:      flagPetHP,
		MaxHP:   maxHP,
	}
	if err := store.UpsertPet(context.Background(), pet); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving pet: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved pet %d (%s) for player %d: level %d, %d/%d hp\n",
		pet.PetID, pet.Name, pet.OwnerID, pet.Level, pet.HP, pet.MaxHP)
}

func runPetShow(_ *cobra.Command, args []string) {
	id := parsePetID(args[0])

	store := openStore()
	defer store.Close()

	pet, err := store.Pet(context.Background(), id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving pet: %v\n", err)
		os.Exit(1)
	}
	if pet == nil {
		fmt.Printf("No pet with id %d.\n", id)
		return
	}

	fmt.Printf("  %-8s %d\n", "ID", pet.PetID)
	fmt.Printf("  %-8s %d\n", "Owner", pet.OwnerID)
	fmt.Printf("  %-8s %s\n", "Name", pet.Name)
	fmt.Printf("  %-8s %d\n", "Level", pet.Level)
	fmt.Printf("  %-8s %d/%d\n", "HP", pet.HP, pet.MaxHP)
	fmt.Printf("  %-8s %s\n", "Updated", pet.UpdatedAt.Format("2006-01-02 15:04"))
}
