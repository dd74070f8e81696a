package factory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/matchmaking"
	"github.com/mcoot/gamesync/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) waitDone(search *matchmaking.Search) {
	select {
	case <-search.Done():
	case <-time.After(testutil.WaitTimeout):
		s.FailNow("search did not finish")
	}
}

// Test: Two registered players find each other, play, finish and record results
func (s *IntegrationSuite) TestCompleteMatchFlow() {
	host := s.app.App
	guest := s.app.NewPeer()
	defer guest.Close()

	// Step 1: Register both accounts; the smaller uid hosts
	s.app.MockRandom.QueueString("aaaaaaaaaaaa", "bbbbbbbbbbbb", "GAME")
	hostUser, err := host.Identity.Register(s.ctx, "alice", "secret", "Alice")
	s.Require().NoError(err)
	guestUser, err := guest.Identity.Register(s.ctx, "bob", "hunter2", "Bob")
	s.Require().NoError(err)
	s.Equal("u_aaaaaaaaaaaa", hostUser.ID)

	// Step 2: Both start searching
	var mu sync.Mutex
	matches := make(map[string]matchmaking.Match)
	record := func(name string) matchmaking.MatchedFunc {
		return func(m matchmaking.Match) {
			mu.Lock()
			defer mu.Unlock()
			matches[name] = m
		}
	}
	failOnTimeout := func(reason string) { s.Failf("unexpected timeout", "reason: %s", reason) }

	hostSearch, err := host.Matchmaker.Matchmake(s.ctx, "tic-tac-toe", map[string]any{"board": "........."}, record("host"), failOnTimeout)
	s.Require().NoError(err)
	guestSearch, err := guest.Matchmaker.Matchmake(s.ctx, "tic-tac-toe", map[string]any{"board": "........."}, record("guest"), failOnTimeout)
	s.Require().NoError(err)
	s.waitDone(hostSearch)
	s.waitDone(guestSearch)

	s.Equal(matchmaking.StateMatchedAsHost, hostSearch.State())
	s.Equal(matchmaking.StateMatchedAsGuest, guestSearch.State())
	hostSession := matches["host"].Session
	guestSession := matches["guest"].Session
	s.Equal(model.RoomCode("GAME"), hostSession.Code())
	s.Equal(model.RoomCode("GAME"), guestSession.Code())

	// Step 3: The guest watches while the host moves
	updates := make(chan *model.Room, 16)
	s.Require().NoError(guestSession.OnUpdate(s.ctx, func(r *model.Room, err error) {
		if err == nil {
			updates <- r
		}
	}))
	s.Require().NoError(hostSession.SendMoveAndState(s.ctx,
		map[string]any{"cell": 4, "mark": "X"},
		map[string]any{"board": "....X...."},
	))

	s.Eventually(func() bool {
		for {
			select {
			case r := <-updates:
				if r.MoveID == 1 {
					s.Equal("....X....", r.State["board"])
					s.Equal(map[string]any{"cell": float64(4), "mark": "X"}, r.LastMove)
					return true
				}
			default:
				return false
			}
		}
	}, testutil.WaitTimeout, testutil.PollInterval)

	// Step 4: The host finishes the room and both record the result
	s.Require().NoError(hostSession.Finish(s.ctx, hostUser.ID))
	r, err := guest.Rooms.Get(s.ctx, "GAME")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusFinished, r.Status)
	s.Equal(hostUser.ID, r.Winner)

	_, err = host.Leaderboard.Submit(s.ctx, "tic-tac-toe", model.ResultWin)
	s.Require().NoError(err)
	_, err = guest.Leaderboard.Submit(s.ctx, "tic-tac-toe", model.ResultLoss)
	s.Require().NoError(err)

	top, err := guest.Leaderboard.Top(s.ctx, "tic-tac-toe", 10)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal(hostUser.ID, top[0].UID)
	s.Equal(1, top[0].Wins)
	s.Equal(guestUser.ID, top[1].UID)
	s.Equal(1, top[1].Losses)

	// A finished room cannot be finished again
	s.ErrorIs(guestSession.Finish(s.ctx, guestUser.ID), model.ErrInvalidTransition)
}

// Test: A peer going away flips its presence for everyone else
func (s *IntegrationSuite) TestPresenceFollowsConnection() {
	observer := s.app.App
	player := s.app.NewPeer()

	s.app.MockRandom.QueueString("cccccccccccc")
	user, err := player.Identity.Register(s.ctx, "carol", "pw", "")
	s.Require().NoError(err)
	s.Require().NoError(player.Presence.GoOnline(s.ctx))

	p, err := observer.Presence.Get(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Require().NotNil(p)
	s.True(p.Online)

	s.Require().NoError(player.Store.Disconnect(s.ctx))

	p, err = observer.Presence.Get(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Require().NotNil(p)
	s.False(p.Online)
}

// Test: A lone seeker times out and leaves nothing behind
func (s *IntegrationSuite) TestLoneSeekerTimesOut() {
	reasons := make(chan string, 1)
	search, err := s.app.Matchmaker.Matchmake(s.ctx, "chess", nil,
		func(matchmaking.Match) { s.Fail("unexpected match") },
		func(reason string) { reasons <- reason },
	)
	s.Require().NoError(err)

	s.app.MockClock.Advance(matchmaking.DefaultConfig().Timeout)
	s.waitDone(search)

	s.Equal(matchmaking.StateTimedOut, search.State())
	s.Equal(matchmaking.ReasonNoPlayers, <-reasons)
	s.Eventually(func() bool {
		return s.app.Backend.Snapshot(matchmaking.QueuePath("chess")) == nil
	}, testutil.WaitTimeout, testutil.PollInterval)
}

// Test: Rooms created through one peer are joinable by code from another
func (s *IntegrationSuite) TestJoinByCode() {
	guest := s.app.NewPeer()
	defer guest.Close()

	s.app.MockRandom.QueueString("ABCD")
	hostSession, created, err := s.app.Rooms.Create(s.ctx, "connect-four", map[string]any{"turn": 0})
	s.Require().NoError(err)
	s.Equal(model.PlayerHost, hostSession.Player())
	s.Equal(model.AnonymousParticipant, created.Host)

	exists, err := guest.Rooms.Exists(s.ctx, "ABCD")
	s.Require().NoError(err)
	s.True(exists)

	guestSession, joined, err := guest.Rooms.Join(s.ctx, "ABCD")
	s.Require().NoError(err)
	s.Equal(model.PlayerGuest, guestSession.Player())
	s.Equal(model.RoomStatusPlaying, joined.Status)

	_, _, err = s.app.NewPeer().Rooms.Join(s.ctx, "ABCD")
	s.ErrorIs(err, model.ErrRoomFull)
}
