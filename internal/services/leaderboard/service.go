// Package leaderboard keeps per-game win/loss/draw tallies
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/store"
)

const (
	leaderboardPath = "leaderboard"

	// DefaultLimit is the number of entries Top returns when no limit is given
	DefaultLimit = 20
)

// Path returns the store path of a game's leaderboard
func Path(gameID string) string {
	return store.Join(leaderboardPath, gameID)
}

// Service records results for the signed-in user and ranks players
type Service struct {
	store    store.Store
	identity identity.Provider
	logger   *slog.Logger
}

// New creates a new leaderboard Service
func New(st store.Store, id identity.Provider, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		identity: id,
		logger:   logger.With(slog.String("component", "leaderboard")),
	}
}

// Submit adds a result to the signed-in user's record and returns the new
// totals. Without a signed-in user it does nothing and returns nil.
func (s *Service) Submit(ctx context.Context, gameID string, result model.GameResult) (*model.PlayerStats, error) {
	if !result.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidResult, result)
	}
	user := s.identity.CurrentUser()
	if user == nil {
		return nil, nil
	}
	path := store.Join(Path(gameID), user.ID)

	_, err := s.store.Transaction(ctx, path, func(current any) (any, error) {
		var stats model.PlayerStats
		if current != nil {
			if err := store.Decode(current, &stats); err != nil {
				return nil, fmt.Errorf("decode stats: %w", err)
			}
		}
		stats.Name = user.Name
		switch result {
		case model.ResultWin:
			stats.Wins++
		case model.ResultLoss:
			stats.Losses++
		case model.ResultDraw:
			stats.Draws++
		}
		stats.Games++

		record := map[string]any{
			"name":       stats.Name,
			"wins":       stats.Wins,
			"losses":     stats.Losses,
			"draws":      stats.Draws,
			"games":      stats.Games,
			"lastPlayed": store.ServerTimestamp,
		}
		return record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit result: %w", err)
	}

	s.logger.Info("result submitted",
		slog.String("gameId", gameID),
		slog.String("uid", user.ID),
		slog.String("result", string(result)))

	return s.Get(ctx, gameID, user.ID)
}

// Get returns one player's record, or nil if they have none
func (s *Service) Get(ctx context.Context, gameID, uid string) (*model.PlayerStats, error) {
	v, err := s.store.Read(ctx, store.Join(Path(gameID), uid))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	var stats model.PlayerStats
	if err := store.Decode(v, &stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	stats.UID = uid
	return &stats, nil
}

// Top returns up to limit records ordered by wins, most first
func (s *Service) Top(ctx context.Context, gameID string, limit int) ([]model.PlayerStats, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	v, err := s.store.Read(ctx, Path(gameID))
	if err != nil {
		return nil, err
	}
	nodes, _ := v.(map[string]any)

	entries := make([]model.PlayerStats, 0, len(nodes))
	for uid, node := range nodes {
		var stats model.PlayerStats
		if err := store.Decode(node, &stats); err != nil {
			s.logger.Warn("skipping undecodable leaderboard entry",
				slog.String("uid", uid),
				slog.String("error", err.Error()))
			continue
		}
		stats.UID = uid
		entries = append(entries, stats)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].UID < entries[j].UID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
