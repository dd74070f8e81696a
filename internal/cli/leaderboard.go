package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/services/leaderboard"
)

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Win/loss records per game",
	}

	cmd.AddCommand(newLeaderboardSubmitCmd())
	cmd.AddCommand(newLeaderboardTopCmd())

	return cmd
}

func newLeaderboardSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <game-id> <win|loss|draw>",
		Short: "Record the result of a finished game for the signed-in user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := identity.RequireUser(app.Identity); err != nil {
				return err
			}
			stats, err := app.Leaderboard.Submit(cmd.Context(), args[0], model.GameResult(args[1]))
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(Standings{GameID: args[0], Entries: []model.PlayerStats{*stats}})
			return nil
		},
	}
}

func newLeaderboardTopCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top <game-id>",
		Short: "Show the best records for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.Leaderboard.Top(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(Standings{GameID: args[0], Entries: entries})
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", leaderboard.DefaultLimit, "Number of entries")

	return cmd
}
