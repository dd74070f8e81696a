package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/services/identity"
)

func newPresenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Online status commands",
	}

	cmd.AddCommand(newPresenceOnlineCmd())
	cmd.AddCommand(newPresenceGetCmd())

	return cmd
}

func newPresenceOnlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "Stay online until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := identity.RequireUser(app.Identity)
			if err != nil {
				return err
			}
			if err := app.Presence.GoOnline(cmd.Context()); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.PrintMessage(user.Name + " is online")

			<-cmd.Context().Done()

			if err := app.Presence.GoOffline(context.WithoutCancel(cmd.Context())); err != nil {
				return err
			}
			out.PrintMessage(user.Name + " is offline")
			return nil
		},
	}
}

func newPresenceGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <uid>",
		Short: "Show a user's online status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Presence.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(PresenceResult{UID: args[0], Presence: p})
			return nil
		},
	}
}
