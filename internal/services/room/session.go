package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/store"
)

// UpdateFunc receives each snapshot of a watched room. err is non-nil once
// when the subscription fails; no further snapshots follow it.
type UpdateFunc func(room *model.Room, err error)

// Session is a client's handle on one room it has created, joined or opened.
// After Leave every operation is a no-op.
type Session struct {
	store  store.Store
	logger *slog.Logger
	code   model.RoomCode
	player model.PlayerIndex
	path   string

	mu     sync.Mutex
	active bool
	sub    store.Subscription
}

func newSession(s *Service, code model.RoomCode, player model.PlayerIndex) *Session {
	return &Session{
		store:  s.store,
		logger: s.logger.With(slog.String("code", string(code))),
		code:   code,
		player: player,
		path:   Path(code),
		active: true,
	}
}

// Code returns the room code
func (s *Session) Code() model.RoomCode {
	return s.code
}

// Player returns the seat this client occupies
func (s *Session) Player() model.PlayerIndex {
	return s.player
}

// Active reports whether the session has not been left
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// OnUpdate subscribes fn to the room, replacing any earlier subscription.
// Snapshots where the room is absent are skipped.
func (s *Session) OnUpdate(ctx context.Context, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	if s.sub != nil {
		s.sub.Unwatch()
		s.sub = nil
	}

	var sub store.Subscription
	sub, err := s.store.Watch(ctx, s.path, func(value any, err error) {
		// Deliveries for a left or replaced subscription are dropped
		s.mu.Lock()
		current := s.active && s.sub == sub
		if current && err != nil {
			s.sub = nil
		}
		s.mu.Unlock()
		if !current {
			return
		}

		if err != nil {
			fn(nil, fmt.Errorf("watch room %s: %w", s.code, err))
			return
		}
		if value == nil {
			return
		}
		room, err := decodeRoom(value)
		if err != nil {
			s.logger.Warn("skipping undecodable room snapshot", slog.String("error", err.Error()))
			return
		}
		fn(room, nil)
	})
	if err != nil {
		return fmt.Errorf("watch room %s: %w", s.code, err)
	}
	s.sub = sub
	return nil
}

// Leave stops the subscription and deactivates the session. The room itself
// stays in the store.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	if s.sub != nil {
		s.sub.Unwatch()
		s.sub = nil
	}
}

// Finish records the winner and ends a playing room
func (s *Session) Finish(ctx context.Context, winner string) error {
	if !s.Active() {
		return nil
	}
	_, err := s.store.Transaction(ctx, s.path, func(current any) (any, error) {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, model.ErrRoomNotFound
		}
		room, err := decodeRoom(node)
		if err != nil {
			return nil, err
		}
		if !room.CanTransition(model.RoomStatusFinished) {
			return nil, fmt.Errorf("%w: cannot finish a %s room", model.ErrInvalidTransition, room.Status)
		}
		node["status"] = string(model.RoomStatusFinished)
		node["winner"] = winner
		return node, nil
	})
	if err != nil {
		return fmt.Errorf("finish room %s: %w", s.code, err)
	}
	s.logger.Info("room finished", slog.String("winner", winner))
	return nil
}
