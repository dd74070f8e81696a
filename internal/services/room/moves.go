package room

import (
	"context"
	"fmt"

	"github.com/mcoot/gamesync/internal/model"
)

// nextMoveID reads the room's move counter and returns its successor.
// Two clients sending at once can read the same counter; turn order is the
// caller's to enforce.
func (s *Session) nextMoveID(ctx context.Context) (int, error) {
	v, err := s.store.Read(ctx, s.path+"/moveId")
	if err != nil {
		return 0, fmt.Errorf("read move id: %w", err)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, model.ErrRoomNotFound
	}
	return int(n) + 1, nil
}

// SendMove publishes a move and advances the move counter
func (s *Session) SendMove(ctx context.Context, move any) error {
	if !s.Active() {
		return nil
	}
	id, err := s.nextMoveID(ctx)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, s.path, map[string]any{
		"moveId":   id,
		"lastMove": move,
	})
}

// UpdateState merges fields into the room's state
func (s *Session) UpdateState(ctx context.Context, fields map[string]any) error {
	if !s.Active() || len(fields) == 0 {
		return nil
	}
	return s.store.Update(ctx, s.path+"/state", fields)
}

// SendMoveAndState publishes a move together with the state it produced.
// Observers see both or neither.
func (s *Session) SendMoveAndState(ctx context.Context, move any, state map[string]any) error {
	if !s.Active() {
		return nil
	}
	id, err := s.nextMoveID(ctx)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, s.path, map[string]any{
		"moveId":   id,
		"lastMove": move,
		"state":    state,
	})
}
