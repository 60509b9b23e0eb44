package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pet-arena/internal/storage"
)

var (
	flagMatchesLimit int
	flagPlayerID     int64
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Show recently finished battles",
	Long: `Display the most recent finished battles, newest first.
With --player, also show the reward totals credited to that player.

Examples:
  arena matches
  arena matches --limit 5
  arena matches --player 42`,
	Args: cobra.NoArgs,
	Run:  runMatches,
}

func init() {
	matchesCmd.Flags().IntVar(&flagMatchesLimit, "limit", 20, "Number of battles to show")
	matchesCmd.Flags().Int64Var(&flagPlayerID, "player", 0, "Show reward totals for this player id")
}

func runMatches(_ *cobra.Command, _ []string) {
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
	defer store.Close()

	ctx := context.Background()
	battles, err := store.RecentBattles(ctx, flagMatchesLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving battles: %v\n", err)
		os.Exit(1)
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229"))
	emptyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	fmt.Println(titleStyle.Render("Recent Battles"))
	fmt.Println()

	if len(battles) == 0 {
		fmt.Println(emptyStyle.Render("No battles recorded yet."))
	} else {
		fmt.Println(renderBattles(battles))
	}

	if flagPlayerID != 0 {
		rewards, err := store.PlayerRewards(ctx, flagPlayerID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error retrieving rewards: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		fmt.Println(titleStyle.Render(fmt.Sprintf("Player %d", rewards.PlayerID)))
		fmt.Printf("  Wins: %d  Losses: %d  Gold: %d  Exp: %d\n",
			rewards.Wins, rewards.Losses, rewards.Gold, rewards.Exp)
	}
}

func renderBattles(battles []storage.BattleRecord) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(battles))
	for _, b := range battles {
		rows = append(rows, []string{
			b.MatchID,
			strconv.FormatInt(b.WinnerID, 10),
			strconv.FormatInt(b.LoserID, 10),
			b.EndReason,
			strconv.Itoa(b.Turns),
			(time.Duration(b.DurationMs) * time.Millisecond).Round(time.Second).String(),
			fmt.Sprintf("%d/%d", b.GoldEarned, b.ExpEarned),
			b.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Match", "Winner", "Loser", "Reason", "Turns", "Duration", "Gold/Exp", "Date").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}
