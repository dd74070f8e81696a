package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
	"github.com/mcoot/gamesync/internal/dependencies/random"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/services/leaderboard"
	"github.com/mcoot/gamesync/internal/services/matchmaking"
	"github.com/mcoot/gamesync/internal/services/presence"
	"github.com/mcoot/gamesync/internal/services/room"
	"github.com/mcoot/gamesync/internal/store"
	"github.com/mcoot/gamesync/internal/store/memory"
	redisstore "github.com/mcoot/gamesync/internal/store/redis"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components for one client connection
type App struct {
	// Store is this client's connection to the shared store
	Store store.Client

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	Identity    *identity.Local
	Rooms       *room.Service
	Matchmaker  *matchmaking.Matchmaker
	Presence    *presence.Service
	Leaderboard *leaderboard.Service
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the store backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstore.Config
	// MatchmakingConfig tunes searches (optional)
	// If zero value, defaults to matchmaking.DefaultConfig()
	MatchmakingConfig matchmaking.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	clk := clock.New()
	rnd := random.New()

	// Create store based on type
	var st store.Client
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		st = memory.NewBackend(clk, logger).Connect()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstore.New(*cfg.RedisConfig, clk, logger)
		if err != nil {
			return nil, err
		}
		st = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	return newWithDependencies(st, clk, rnd, cfg.MatchmakingConfig, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	st store.Client,
	clk clock.Clock,
	rnd random.Random,
	mmCfg matchmaking.Config,
	logger *slog.Logger,
) *App {
	if mmCfg.Timeout <= 0 {
		mmCfg = matchmaking.DefaultConfig()
	}

	id := identity.NewLocal(st, clk, rnd, logger)
	rooms := room.New(st, id, rnd, logger)

	return &App{
		Store:       st,
		Clock:       clk,
		Random:      rnd,
		Identity:    id,
		Rooms:       rooms,
		Matchmaker:  matchmaking.New(st, rooms, id, clk, rnd, logger, mmCfg),
		Presence:    presence.New(st, id, logger),
		Leaderboard: leaderboard.New(st, id, logger),
	}
}

// Close releases the store connection
func (a *App) Close() error {
	return a.Store.Close()
}
