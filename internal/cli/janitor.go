package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/api"
	"github.com/mcoot/gamesync/internal/services/janitor"
)

func newJanitorCmd() *cobra.Command {
	var (
		interval time.Duration
		host     string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Apply disconnect actions of dead clients and serve the ops API",
		Long: `janitor periodically sweeps the Redis store for clients whose heartbeat
has lapsed and applies the writes they registered for disconnection (queue
entry removal, presence going offline). It also serves a small read-only HTTP
API with health, sweep statistics, rooms, leaderboards and presence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, ok := app.Store.(janitor.Sweeper)
			if !ok {
				return errors.New("janitor requires redis storage")
			}

			// The janitor logs at info regardless of --verbose
			jlogger := logger
			if !cfg.Verbose {
				jlogger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))
			}

			j := janitor.New(sweeper, app.Clock, jlogger, janitor.Config{Interval: interval})

			router := api.NewRouter(api.RouterConfig{
				Logger:      jlogger,
				Store:       app.Store,
				Janitor:     j,
				Rooms:       app.Rooms,
				Leaderboard: app.Leaderboard,
				Presence:    app.Presence,
			})
			serverConfig := api.DefaultServerConfig()
			serverConfig.Host = host
			serverConfig.Port = port
			server := api.NewServer(router, serverConfig, jlogger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			janitorDone := make(chan struct{})
			go func() {
				defer close(janitorDone)
				_ = j.Run(ctx)
			}()

			// Returns once interrupted, or at once if the listener fails
			err := server.Run(ctx)
			cancel()
			<-janitorDone

			NewOutput(cfg.Output).Print(j.Stats())
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", janitor.DefaultConfig().Interval, "Time between sweeps")
	cmd.Flags().StringVar(&host, "host", api.DefaultServerConfig().Host, "HTTP listen host")
	cmd.Flags().IntVar(&port, "port", api.DefaultServerConfig().Port, "HTTP listen port")

	return cmd
}
