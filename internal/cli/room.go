package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/room"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room lifecycle and move commands",
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomShowCmd())
	cmd.AddCommand(newRoomExistsCmd())
	cmd.AddCommand(newRoomWatchCmd())
	cmd.AddCommand(newRoomMoveCmd())
	cmd.AddCommand(newRoomStateCmd())
	cmd.AddCommand(newRoomFinishCmd())

	return cmd
}

// openSession attaches to an existing room in the seat the current user holds
func openSession(ctx context.Context, raw string) (*room.Session, error) {
	session, _, err := app.Rooms.Open(ctx, roomCode(raw))
	return session, err
}

func newRoomCreateCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "create <game-id>",
		Short: "Create a room and wait for a guest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseObject(state)
			if err != nil {
				return err
			}

			_, created, err := app.Rooms.Create(cmd.Context(), args[0], initial)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(created)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Initial game state as a JSON object")

	return cmd
}

func newRoomJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Take the guest seat of a waiting room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, joined, err := app.Rooms.Join(cmd.Context(), roomCode(args[0]))
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(joined)
			return nil
		},
	}
}

func newRoomShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := app.Rooms.Get(cmd.Context(), roomCode(args[0]))
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(r)
			return nil
		},
	}
}

func newRoomExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <code>",
		Short: "Check whether a room exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := roomCode(args[0])
			ok, err := app.Rooms.Exists(cmd.Context(), code)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			if cfg.Output == "json" {
				out.Print(map[string]any{"code": code, "exists": ok})
			} else if ok {
				out.PrintMessage(fmt.Sprintf("Room %s exists", code))
			} else {
				out.PrintMessage(fmt.Sprintf("Room %s does not exist", code))
			}
			return nil
		},
	}
}

func newRoomWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <code>",
		Short: "Print every change to a room until it finishes or you interrupt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			session, err := openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer session.Leave()

			out := NewOutput(cfg.Output)
			errCh := make(chan error, 1)
			err = session.OnUpdate(ctx, func(r *model.Room, err error) {
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				out.Print(r)
				if r.Status == model.RoomStatusFinished {
					cancel()
				}
			})
			if err != nil {
				return err
			}

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}
}

func newRoomMoveCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "move <code> <move>",
		Short: "Publish a move (JSON, or a bare string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseObject(state)
			if err != nil {
				return err
			}
			session, err := openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer session.Leave()

			move := parseValue(args[1])
			if fields != nil {
				err = session.SendMoveAndState(cmd.Context(), move, fields)
			} else {
				err = session.SendMove(cmd.Context(), move)
			}
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage("Move sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "State fields to update with the move, as a JSON object")

	return cmd
}

func newRoomStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <code> <fields>",
		Short: "Merge fields (a JSON object) into the room's state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseObject(args[1])
			if err != nil {
				return err
			}
			session, err := openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer session.Leave()

			if err := session.UpdateState(cmd.Context(), fields); err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage("State updated")
			return nil
		},
	}
}

func newRoomFinishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish <code> <winner>",
		Short: "End a playing room and record the winner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer session.Leave()

			if err := session.Finish(cmd.Context(), args[1]); err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage("Room finished")
			return nil
		},
	}
}
