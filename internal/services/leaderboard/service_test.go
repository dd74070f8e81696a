package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamesync/internal/dependencies/mocks"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/store/memory"
	"github.com/mcoot/gamesync/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	backend *memory.Backend
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.UnixMilli(1_700_000_000_000))
	s.backend = memory.NewBackend(s.clock, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) serviceFor(user *model.User) *Service {
	conn := s.backend.Connect()
	s.T().Cleanup(func() { _ = conn.Close() })
	return New(conn, identity.Static{User: user}, testutil.NopLogger())
}

func (s *ServiceSuite) TestSubmitAccumulates() {
	svc := s.serviceFor(&model.User{ID: "uid-a", Name: "Alice"})

	_, err := svc.Submit(s.ctx, "chess", model.ResultWin)
	s.Require().NoError(err)
	_, err = svc.Submit(s.ctx, "chess", model.ResultLoss)
	s.Require().NoError(err)
	s.clock.Advance(time.Second)
	stats, err := svc.Submit(s.ctx, "chess", model.ResultDraw)
	s.Require().NoError(err)

	s.Equal(model.PlayerStats{
		UID:        "uid-a",
		Name:       "Alice",
		Wins:       1,
		Losses:     1,
		Draws:      1,
		Games:      3,
		LastPlayed: 1_700_000_001_000,
	}, *stats)
}

func (s *ServiceSuite) TestSubmitWithoutUserIsNoop() {
	stats, err := s.serviceFor(nil).Submit(s.ctx, "chess", model.ResultWin)
	s.Require().NoError(err)
	s.Nil(stats)
	s.Nil(s.backend.Snapshot("leaderboard"))
}

func (s *ServiceSuite) TestSubmitRejectsUnknownResult() {
	svc := s.serviceFor(&model.User{ID: "uid-a", Name: "Alice"})
	_, err := svc.Submit(s.ctx, "chess", model.GameResult("forfeit"))
	s.ErrorIs(err, model.ErrInvalidResult)
}

func (s *ServiceSuite) TestConcurrentSubmitsAreNotLost() {
	user := &model.User{ID: "uid-a", Name: "Alice"}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.serviceFor(user).Submit(s.ctx, "chess", model.ResultWin)
			s.NoError(err)
		}()
	}
	wg.Wait()

	stats, err := s.serviceFor(nil).Get(s.ctx, "chess", "uid-a")
	s.Require().NoError(err)
	s.Equal(20, stats.Wins)
	s.Equal(20, stats.Games)
}

func (s *ServiceSuite) TestTopOrdersByWins() {
	for i, wins := range []int{3, 7, 1, 7} {
		svc := s.serviceFor(&model.User{ID: fmt.Sprintf("uid-%d", i), Name: fmt.Sprintf("P%d", i)})
		for w := 0; w < wins; w++ {
			_, err := svc.Submit(s.ctx, "chess", model.ResultWin)
			s.Require().NoError(err)
		}
	}

	top, err := s.serviceFor(nil).Top(s.ctx, "chess", 3)
	s.Require().NoError(err)
	s.Require().Len(top, 3)
	s.Equal("uid-1", top[0].UID)
	s.Equal("uid-3", top[1].UID)
	s.Equal("uid-0", top[2].UID)
	s.Equal(7, top[0].Wins)
}

func (s *ServiceSuite) TestTopDefaultsAndEmpty() {
	top, err := s.serviceFor(nil).Top(s.ctx, "chess", 0)
	s.Require().NoError(err)
	s.Empty(top)

	for i := 0; i < DefaultLimit+5; i++ {
		svc := s.serviceFor(&model.User{ID: fmt.Sprintf("uid-%02d", i), Name: "P"})
		_, err := svc.Submit(s.ctx, "chess", model.ResultDraw)
		s.Require().NoError(err)
	}
	top, err = s.serviceFor(nil).Top(s.ctx, "chess", 0)
	s.Require().NoError(err)
	s.Len(top, DefaultLimit)
}
