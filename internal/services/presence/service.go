// Package presence publishes whether the signed-in user is online
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/store"
)

const presencePath = "presence"

// Path returns the store path of a user's presence
func Path(uid string) string {
	return store.Join(presencePath, uid)
}

// Service tracks the current user's online flag
type Service struct {
	store    store.Store
	identity identity.Provider
	logger   *slog.Logger

	mu     sync.Mutex
	uid    string
	action store.DisconnectAction
}

// New creates a new presence Service
func New(st store.Store, id identity.Provider, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		identity: id,
		logger:   logger.With(slog.String("component", "presence")),
	}
}

func status(online bool) map[string]any {
	return map[string]any{
		"online":   online,
		"lastSeen": store.ServerTimestamp,
	}
}

// GoOnline marks the current user online and arranges for the store to mark
// them offline if this client disconnects. Without a signed-in user it does
// nothing.
func (s *Service) GoOnline(ctx context.Context) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return nil
	}
	path := Path(user.ID)

	if err := s.store.Write(ctx, path, status(true)); err != nil {
		return fmt.Errorf("go online: %w", err)
	}
	action, err := s.store.OnDisconnect(ctx, path, status(false))
	if err != nil {
		return fmt.Errorf("register offline action: %w", err)
	}

	s.mu.Lock()
	previous := s.action
	s.uid = user.ID
	s.action = action
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Cancel(ctx); err != nil {
			s.logger.Warn("failed to cancel previous offline action", slog.String("error", err.Error()))
		}
	}
	s.logger.Debug("online", slog.String("uid", user.ID))
	return nil
}

// GoOffline withdraws the disconnect action and marks the user offline now
func (s *Service) GoOffline(ctx context.Context) error {
	s.mu.Lock()
	uid, action := s.uid, s.action
	s.uid, s.action = "", nil
	s.mu.Unlock()

	if action == nil {
		return nil
	}
	if err := action.Cancel(ctx); err != nil {
		s.logger.Warn("failed to cancel offline action", slog.String("error", err.Error()))
	}
	if err := s.store.Write(ctx, Path(uid), status(false)); err != nil {
		return fmt.Errorf("go offline: %w", err)
	}
	return nil
}

// Get returns a user's presence, or nil if they have never been online
func (s *Service) Get(ctx context.Context, uid string) (*model.Presence, error) {
	v, err := s.store.Read(ctx, Path(uid))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	var p model.Presence
	if err := store.Decode(v, &p); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return &p, nil
}
