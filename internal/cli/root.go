package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/gamesync/internal/factory"
	"github.com/mcoot/gamesync/internal/services/matchmaking"
)

var (
	cfg    *Config
	app    *factory.App
	logger *slog.Logger
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "gamesync",
		Short: "Two-player game coordination over a shared store",
		Long: `gamesync creates and joins two-player rooms, exchanges moves, pairs players
through the matchmaking queue and tracks presence, all by talking directly to
the shared store. No game server is involved.

The janitor subcommand runs the one long-lived process the Redis backend needs:
it applies the disconnect actions of clients that stopped heartbeating.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = newLogger(cfg.Verbose)

			redisCfg := cfg.RedisConfig()
			a, err := factory.New(factory.Config{
				Logger:            logger,
				StorageType:       cfg.StorageType,
				RedisConfig:       &redisCfg,
				MatchmakingConfig: matchmaking.Config{Timeout: cfg.MatchTimeout},
			})
			if err != nil {
				return err
			}
			app = a

			// Restore the identity saved by an earlier sign-in
			user, err := cfg.LoadUser()
			if err != nil {
				return err
			}
			if user != nil {
				app.Identity.SetUser(user)
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.StorageType, "storage", cfg.StorageType, "Store backend: redis, memory (env: STORAGE_TYPE)")
	rootCmd.PersistentFlags().StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL (env: REDIS_URL)")
	rootCmd.PersistentFlags().StringVar(&cfg.KeyPrefix, "prefix", cfg.KeyPrefix, "Redis key prefix (env: GAMESYNC_KEY_PREFIX)")
	rootCmd.PersistentFlags().StringVar(&cfg.UserFile, "user-file", cfg.UserFile, "Saved identity path (env: GAMESYNC_USER_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newAccountCmd())
	rootCmd.AddCommand(newRoomCmd())
	rootCmd.AddCommand(newMatchmakeCmd())
	rootCmd.AddCommand(newPresenceCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	rootCmd.AddCommand(newJanitorCmd())

	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Run executes the CLI with args and releases the store connection afterwards
func Run(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if app != nil {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("failed to close store", slog.String("error", cerr.Error()))
		}
		app = nil
	}
	return err
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so blocking commands can clean up.
func Execute() {
	if err := LoadEnvFile(".env"); err != nil {
		NewOutput("text").PrintError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
