package room

import (
	"sync"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/testutil"
)

func (s *ServiceSuite) startGame() (*Session, *Session) {
	hostSession := s.createRoom("7XQP")
	guestSession, _, err := s.guest.Join(s.ctx, "7XQP")
	s.Require().NoError(err)
	return hostSession, guestSession
}

func (s *ServiceSuite) TestMoveIDCountsAlternatingMoves() {
	hostSession, guestSession := s.startGame()

	for i := 0; i < 10; i++ {
		mover := hostSession
		if i%2 == 1 {
			mover = guestSession
		}
		s.Require().NoError(mover.SendMove(s.ctx, map[string]any{"n": i}))
		room := s.snapshot("7XQP")
		s.Equal(i+1, room.MoveID)
		s.Equal(map[string]any{"n": float64(i)}, room.LastMove)
	}
}

func (s *ServiceSuite) TestSendMoveOnMissingRoom() {
	hostSession := s.createRoom("7XQP")
	s.Require().NoError(s.host.Remove(s.ctx, "7XQP"))

	err := hostSession.SendMove(s.ctx, "e4")
	s.ErrorIs(err, model.ErrRoomNotFound)
	s.Nil(s.backend.Snapshot("rooms/7XQP"))
}

func (s *ServiceSuite) TestUpdateStateMergesFields() {
	hostSession, _ := s.startGame()

	s.Require().NoError(hostSession.UpdateState(s.ctx, map[string]any{"turn": 1, "score": map[string]any{"a": 2}}))
	s.Require().NoError(hostSession.UpdateState(s.ctx, map[string]any{"turn": 2}))

	room := s.snapshot("7XQP")
	s.Equal(float64(2), room.State["turn"])
	s.Equal(map[string]any{"a": float64(2)}, room.State["score"])
	s.Equal([]any{float64(5), float64(5), float64(5)}, room.State["pits"])
	s.Equal(0, room.MoveID)
}

func (s *ServiceSuite) TestSendMoveAndStateIsAtomicForObservers() {
	hostSession, guestSession := s.startGame()

	var (
		mu        sync.Mutex
		snapshots []*model.Room
	)
	s.Require().NoError(guestSession.OnUpdate(s.ctx, func(room *model.Room, err error) {
		s.NoError(err)
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, room)
	}))

	const moves = 15
	for i := 1; i <= moves; i++ {
		s.Require().NoError(hostSession.SendMoveAndState(s.ctx,
			map[string]any{"move": i},
			map[string]any{"appliedMove": i}))
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) > 0 && snapshots[len(snapshots)-1].MoveID == moves
	}, testutil.WaitTimeout, testutil.PollInterval)

	mu.Lock()
	defer mu.Unlock()
	prev := -1
	for _, room := range snapshots {
		s.Greater(room.MoveID, prev)
		prev = room.MoveID
		if room.MoveID == 0 {
			continue
		}
		s.Equal(map[string]any{"move": float64(room.MoveID)}, room.LastMove)
		s.Equal(float64(room.MoveID), room.State["appliedMove"])
	}
}

func (s *ServiceSuite) TestSendMoveAndStateReplacesState() {
	hostSession, _ := s.startGame()

	s.Require().NoError(hostSession.SendMoveAndState(s.ctx, "e4", map[string]any{"board": "x"}))

	room := s.snapshot("7XQP")
	s.Equal(1, room.MoveID)
	s.Equal("e4", room.LastMove)
	s.Equal(map[string]any{"board": "x"}, room.State)
}
