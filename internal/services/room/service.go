// Package room implements the room lifecycle (create, join, finish) and move
// synchronisation on top of the shared store.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcoot/gamesync/internal/dependencies/random"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/store"
)

const (
	// CodeLength is the length of generated room codes
	CodeLength = 4
	// CodeAlphabet is the characters used in room codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// DefaultHostName is shown for a host nobody signed in as
	DefaultHostName = "Player 1"
	// DefaultGuestName is shown for a guest nobody signed in as
	DefaultGuestName = "Player 2"

	roomsPath = "rooms"
)

// Path returns the store path of a room
func Path(code model.RoomCode) string {
	return store.Join(roomsPath, string(code))
}

// ValidCode reports whether code could have been generated by Create. Anything
// else would address some other node of the store.
func ValidCode(code model.RoomCode) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range string(code) {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return false
		}
	}
	return true
}

// Service creates and joins rooms
type Service struct {
	store    store.Store
	identity identity.Provider
	random   random.Random
	logger   *slog.Logger
}

// New creates a new room Service
func New(st store.Store, id identity.Provider, rnd random.Random, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		identity: id,
		random:   rnd,
		logger:   logger.With(slog.String("component", "room")),
	}
}

// participant returns the id and display name the current user occupies a seat with
func (s *Service) participant(fallbackName string) (string, string) {
	user := s.identity.CurrentUser()
	if user == nil {
		return model.AnonymousParticipant, fallbackName
	}
	return user.ID, user.Name
}

// Create writes a new waiting room hosted by the current user. Codes are not
// checked for collisions. Store failures are returned without retrying.
func (s *Service) Create(ctx context.Context, gameID string, initialState map[string]any) (*Session, *model.Room, error) {
	code := model.RoomCode(s.random.String(CodeLength, CodeAlphabet))
	host, hostName := s.participant(DefaultHostName)

	record := map[string]any{
		"code":      code,
		"gameId":    gameID,
		"host":      host,
		"hostName":  hostName,
		"state":     initialState,
		"moveId":    0,
		"status":    model.RoomStatusWaiting,
		"createdAt": store.ServerTimestamp,
	}
	if err := s.store.Write(ctx, Path(code), record); err != nil {
		return nil, nil, fmt.Errorf("create room: %w", err)
	}

	room, err := s.get(ctx, code)
	if err != nil {
		// Nobody holds a session for the room, so do not leave it behind
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), Path(code)); rmErr != nil {
			s.logger.Warn("failed to remove unreadable room",
				slog.String("code", string(code)),
				slog.String("error", rmErr.Error()))
		}
		return nil, nil, fmt.Errorf("create room: %w", err)
	}

	s.logger.Info("room created",
		slog.String("code", string(code)),
		slog.String("gameId", gameID),
		slog.String("host", host))

	return newSession(s, code, model.PlayerHost), room, nil
}

// Join takes the guest seat of a waiting room. The occupancy check and the
// seat assignment commit together, so of two racing joiners only one wins.
func (s *Service) Join(ctx context.Context, code model.RoomCode) (*Session, *model.Room, error) {
	if !ValidCode(code) {
		return nil, nil, fmt.Errorf("join room %s: %w", code, model.ErrRoomNotFound)
	}
	guest, guestName := s.participant(DefaultGuestName)

	var joined model.Room
	_, err := s.store.Transaction(ctx, Path(code), func(current any) (any, error) {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, model.ErrRoomNotFound
		}
		var room model.Room
		if err := store.Decode(node, &room); err != nil {
			return nil, fmt.Errorf("decode room %s: %w", code, err)
		}
		if room.HasGuest() {
			return nil, model.ErrRoomFull
		}
		if !room.CanTransition(model.RoomStatusPlaying) {
			return nil, fmt.Errorf("%w: cannot join a %s room", model.ErrInvalidTransition, room.Status)
		}

		node["guest"] = guest
		node["guestName"] = guestName
		node["status"] = string(model.RoomStatusPlaying)

		room.Guest = guest
		room.GuestName = guestName
		room.Status = model.RoomStatusPlaying
		joined = room
		return node, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("join room %s: %w", code, err)
	}

	s.logger.Info("room joined",
		slog.String("code", string(code)),
		slog.String("guest", guest))

	return newSession(s, code, model.PlayerGuest), &joined, nil
}

// Open attaches a session to an existing room without changing it. The seat is
// the guest's if the current user holds it, otherwise the host's.
func (s *Service) Open(ctx context.Context, code model.RoomCode) (*Session, *model.Room, error) {
	room, err := s.get(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	player := model.PlayerHost
	if user := s.identity.CurrentUser(); user != nil && room.HasGuest() && room.Guest == user.ID && room.Host != user.ID {
		player = model.PlayerGuest
	}
	return newSession(s, code, player), room, nil
}

// Exists reports whether a room with the code is present
func (s *Service) Exists(ctx context.Context, code model.RoomCode) (bool, error) {
	if !ValidCode(code) {
		return false, nil
	}
	v, err := s.store.Read(ctx, Path(code))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Get returns the current snapshot of a room
func (s *Service) Get(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	return s.get(ctx, code)
}

func (s *Service) get(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	if !ValidCode(code) {
		return nil, model.ErrRoomNotFound
	}
	v, err := s.store.Read(ctx, Path(code))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, model.ErrRoomNotFound
	}
	return decodeRoom(v)
}

func decodeRoom(v any) (*model.Room, error) {
	var room model.Room
	if err := store.Decode(v, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

// Remove deletes a room record
func (s *Service) Remove(ctx context.Context, code model.RoomCode) error {
	return s.store.Remove(ctx, Path(code))
}
