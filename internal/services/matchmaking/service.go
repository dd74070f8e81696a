// Package matchmaking pairs two strangers through a shared queue without a
// coordinator. Every seeker publishes an entry and watches the queue; of two
// seekers that see each other, the one whose uid sorts first creates the room
// and hands its code to the other.
package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
	"github.com/mcoot/gamesync/internal/dependencies/random"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/services/room"
	"github.com/mcoot/gamesync/internal/store"
)

const (
	queuePath = "matchmaking"

	// DefaultName is the queue display name of a seeker nobody signed in as
	DefaultName = "Player"

	// ReasonNoPlayers is passed to the timeout callback when the search expires
	ReasonNoPlayers = "No players found"

	anonPrefix = "anon_"
	anonLength = 6
)

// QueuePath returns the store path of a game's matchmaking queue
func QueuePath(gameID string) string {
	return store.Join(queuePath, gameID)
}

// Config holds matchmaking settings
type Config struct {
	// Timeout is how long a search waits for an opponent
	Timeout time.Duration
}

// DefaultConfig returns default matchmaking configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Match describes a completed pairing
type Match struct {
	Code   model.RoomCode
	Player model.PlayerIndex
	// Room is the joined room's snapshot; it is nil for the host, who created it
	Room    *model.Room
	Session *room.Session
}

// MatchedFunc is called once when a search pairs
type MatchedFunc func(Match)

// TimeoutFunc is called once when a search ends without a match
type TimeoutFunc func(reason string)

// Matchmaker starts searches
type Matchmaker struct {
	store    store.Store
	rooms    *room.Service
	identity identity.Provider
	clock    clock.Clock
	random   random.Random
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a new Matchmaker
func New(
	st store.Store,
	rooms *room.Service,
	id identity.Provider,
	clk clock.Clock,
	rnd random.Random,
	logger *slog.Logger,
	cfg Config,
) *Matchmaker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Matchmaker{
		store:    st,
		rooms:    rooms,
		identity: id,
		clock:    clk,
		random:   rnd,
		logger:   logger.With(slog.String("component", "matchmaking")),
		timeout:  cfg.Timeout,
	}
}

// seeker returns the uid and name to queue under
func (m *Matchmaker) seeker() (string, string) {
	if user := m.identity.CurrentUser(); user != nil {
		return user.ID, user.Name
	}
	return anonPrefix + m.random.String(anonLength, random.Base36), DefaultName
}

// Matchmake publishes a queue entry for gameID and searches for an opponent.
// Exactly one of onMatched and onTimeout is called, unless the search is
// cancelled first. Errors publishing the entry are returned directly.
func (m *Matchmaker) Matchmake(
	ctx context.Context,
	gameID string,
	initialState map[string]any,
	onMatched MatchedFunc,
	onTimeout TimeoutFunc,
) (*Search, error) {
	uid, name := m.seeker()
	queue := QueuePath(gameID)
	key := m.store.GenerateKey(queue)

	searchCtx, cancel := context.WithCancel(context.Background())
	s := &Search{
		m:            m,
		ctx:          searchCtx,
		cancelCtx:    cancel,
		gameID:       gameID,
		initialState: initialState,
		onMatched:    onMatched,
		onTimeout:    onTimeout,
		uid:          uid,
		name:         name,
		key:          key,
		queue:        queue,
		entryPath:    store.Join(queue, key),
		logger:       m.logger.With(slog.String("gameId", gameID), slog.String("uid", uid)),
		done:         make(chan struct{}),
	}

	entry := map[string]any{
		"key":  key,
		"uid":  uid,
		"name": name,
		"ts":   store.ServerTimestamp,
	}
	if err := m.store.Write(ctx, s.entryPath, entry); err != nil {
		cancel()
		return nil, fmt.Errorf("publish queue entry: %w", err)
	}

	if err := s.start(ctx); err != nil {
		cancel()
		s.release(true)
		return nil, err
	}

	s.logger.Info("searching for opponent", slog.String("key", key))
	return s, nil
}
