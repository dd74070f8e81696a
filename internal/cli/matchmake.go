package cli

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/services/matchmaking"
)

func newMatchmakeCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "matchmake <game-id>",
		Short: "Queue for an opponent and wait until paired or timed out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseObject(state)
			if err != nil {
				return err
			}

			var (
				mu     sync.Mutex
				result MatchResult
			)
			search, err := app.Matchmaker.Matchmake(cmd.Context(), args[0], initial,
				func(m matchmaking.Match) {
					m.Session.Leave()
					mu.Lock()
					defer mu.Unlock()
					result.Code = string(m.Code)
					result.Player = seatName(m.Player)
				},
				func(reason string) {
					mu.Lock()
					defer mu.Unlock()
					result.Reason = reason
				},
			)
			if err != nil {
				return err
			}

			logger.Info("searching", slog.String("gameId", args[0]), slog.String("uid", search.UID()))

			select {
			case <-search.Done():
			case <-cmd.Context().Done():
				search.Cancel()
			}

			mu.Lock()
			result.State = search.State().String()
			out := result
			mu.Unlock()

			NewOutput(cfg.Output).Print(out)
			return search.Err()
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Initial game state as a JSON object, used if this client hosts")
	cmd.Flags().DurationVar(&cfg.MatchTimeout, "timeout", cfg.MatchTimeout, "How long to search (env: GAMESYNC_MATCH_TIMEOUT)")

	return cmd
}
