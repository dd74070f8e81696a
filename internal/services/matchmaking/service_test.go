package matchmaking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gamesync/internal/dependencies/mocks"
	"github.com/mcoot/gamesync/internal/dependencies/random"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/identity"
	"github.com/mcoot/gamesync/internal/services/room"
	"github.com/mcoot/gamesync/internal/store"
	"github.com/mcoot/gamesync/internal/store/memory"
	"github.com/mcoot/gamesync/internal/testutil"
)

// outcome records the callbacks of one search
type outcome struct {
	mu      sync.Mutex
	matches []Match
	reasons []string
}

func (o *outcome) matched(m Match) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.matches = append(o.matches, m)
}

func (o *outcome) timedOut(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons = append(o.reasons, reason)
}

func (o *outcome) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.matches), len(o.reasons)
}

func (o *outcome) match() Match {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.matches[0]
}

func (o *outcome) reason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reasons[0]
}

// client is one simulated peer with its own connection
type client struct {
	conn       *memory.Conn
	random     *mocks.MockRandom
	rooms      *room.Service
	matchmaker *Matchmaker
}

// failingRoomStore rejects room writes so room creation fails
type failingRoomStore struct {
	store.Store
}

func (f failingRoomStore) Write(ctx context.Context, path string, value any) error {
	if strings.HasPrefix(path, "rooms/") {
		return errors.New("write refused")
	}
	return f.Store.Write(ctx, path, value)
}

// watchFailStore lets a test fail the watches registered on a path
type watchFailStore struct {
	store.Store
	mu  sync.Mutex
	fns map[string][]store.WatchFunc
}

func (w *watchFailStore) Watch(ctx context.Context, path string, fn store.WatchFunc) (store.Subscription, error) {
	sub, err := w.Store.Watch(ctx, path, fn)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[string][]store.WatchFunc)
	}
	w.fns[path] = append(w.fns[path], fn)
	return sub, nil
}

func (w *watchFailStore) fail(path string, err error) {
	w.mu.Lock()
	fns := w.fns[path]
	w.mu.Unlock()
	for _, fn := range fns {
		fn(nil, err)
	}
}

type MatchmakerSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	backend *memory.Backend
	ctx     context.Context
}

func TestMatchmakerSuite(t *testing.T) {
	suite.Run(t, new(MatchmakerSuite))
}

func (s *MatchmakerSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.UnixMilli(1_700_000_000_000))
	s.backend = memory.NewBackend(s.clock, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *MatchmakerSuite) newClient(user *model.User) *client {
	return s.newClientWithRoomStore(user, nil)
}

func (s *MatchmakerSuite) newClientWithRoomStore(user *model.User, wrap func(store.Store) store.Store) *client {
	conn := s.backend.Connect()
	s.T().Cleanup(func() { _ = conn.Close() })

	var roomStore store.Store = conn
	if wrap != nil {
		roomStore = wrap(conn)
	}
	var id identity.Provider = identity.Static{User: user}
	rnd := mocks.NewMockRandom()
	rnd.Fallback = random.New()
	rooms := room.New(roomStore, id, rnd, testutil.NopLogger())
	return &client{
		conn:       conn,
		random:     rnd,
		rooms:      rooms,
		matchmaker: New(conn, rooms, id, s.clock, rnd, testutil.NopLogger(), DefaultConfig()),
	}
}

func (s *MatchmakerSuite) search(c *client, gameID string) (*Search, *outcome) {
	out := &outcome{}
	search, err := c.matchmaker.Matchmake(s.ctx, gameID, map[string]any{"turn": 0}, out.matched, out.timedOut)
	s.Require().NoError(err)
	return search, out
}

func (s *MatchmakerSuite) waitDone(search *Search) {
	select {
	case <-search.Done():
	case <-time.After(testutil.WaitTimeout):
		s.FailNow("search did not finish", "state %s", search.State())
	}
}

func (s *MatchmakerSuite) waitQueueEmpty(gameID string) {
	s.Eventually(func() bool {
		return s.backend.Snapshot(QueuePath(gameID)) == nil
	}, testutil.WaitTimeout, testutil.PollInterval)
}

func (s *MatchmakerSuite) roomCount() int {
	rooms, _ := s.backend.Snapshot("rooms").(map[string]any)
	return len(rooms)
}

func (s *MatchmakerSuite) TestTwoAnonymousSeekersPair() {
	x := s.newClient(nil)
	x.random.QueueString("aaa", "7XQP")
	y := s.newClient(nil)
	y.random.QueueString("bbb")

	xSearch, xOut := s.search(x, "raaja-raani")
	ySearch, yOut := s.search(y, "raaja-raani")
	s.Equal("anon_aaa", xSearch.UID())
	s.Equal("anon_bbb", ySearch.UID())

	s.waitDone(xSearch)
	s.waitDone(ySearch)

	s.Equal(StateMatchedAsHost, xSearch.State())
	s.Equal(StateMatchedAsGuest, ySearch.State())

	xMatch := xOut.match()
	s.Equal(model.RoomCode("7XQP"), xMatch.Code)
	s.Equal(model.PlayerHost, xMatch.Player)
	s.Nil(xMatch.Room)
	s.NotNil(xMatch.Session)

	yMatch := yOut.match()
	s.Equal(model.RoomCode("7XQP"), yMatch.Code)
	s.Equal(model.PlayerGuest, yMatch.Player)
	s.Require().NotNil(yMatch.Room)
	s.Equal(model.RoomStatusPlaying, yMatch.Room.Status)
	s.Equal("raaja-raani", yMatch.Room.GameID)
	s.Equal(map[string]any{"turn": float64(0)}, yMatch.Room.State)

	_, xTimeouts := xOut.counts()
	_, yTimeouts := yOut.counts()
	s.Zero(xTimeouts)
	s.Zero(yTimeouts)

	s.waitQueueEmpty("raaja-raani")
	s.Equal(1, s.roomCount())
	s.Equal(0, s.clock.PendingTimers())
}

func (s *MatchmakerSuite) TestSmallerUIDInitiatesWhicheverStartsFirst() {
	late := s.newClient(&model.User{ID: "uid-b", Name: "B"})
	early := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	early.random.QueueString("RM42")

	lateSearch, _ := s.search(late, "chess")
	s.clock.Advance(time.Second)
	earlySearch, _ := s.search(early, "chess")

	s.waitDone(lateSearch)
	s.waitDone(earlySearch)
	s.Equal(StateMatchedAsGuest, lateSearch.State())
	s.Equal(StateMatchedAsHost, earlySearch.State())

	r, err := late.rooms.Get(s.ctx, "RM42")
	s.Require().NoError(err)
	s.Equal("uid-a", r.Host)
	s.Equal("A", r.HostName)
	s.Equal("uid-b", r.Guest)
	s.Equal("B", r.GuestName)
}

func (s *MatchmakerSuite) TestMatchedSessionsShareMoves() {
	x := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	x.random.QueueString("RM42")
	y := s.newClient(&model.User{ID: "uid-b", Name: "B"})

	xSearch, xOut := s.search(x, "chess")
	ySearch, yOut := s.search(y, "chess")
	s.waitDone(xSearch)
	s.waitDone(ySearch)

	host := xOut.match().Session
	guest := yOut.match().Session
	s.Require().NoError(host.SendMove(s.ctx, "e4"))
	s.Require().NoError(guest.SendMove(s.ctx, "e5"))

	r, err := x.rooms.Get(s.ctx, "RM42")
	s.Require().NoError(err)
	s.Equal(2, r.MoveID)
	s.Equal("e5", r.LastMove)
}

func (s *MatchmakerSuite) TestTimeoutFiresOnce() {
	c := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	search, out := s.search(c, "chess")

	s.clock.Advance(29 * time.Second)
	s.Equal(StateSearching, search.State())

	s.clock.Advance(time.Second)
	s.waitDone(search)
	s.Equal(StateTimedOut, search.State())
	s.ErrorIs(search.Err(), model.ErrNoPlayersFound)

	s.clock.Advance(time.Minute)
	matches, timeouts := out.counts()
	s.Zero(matches)
	s.Equal(1, timeouts)
	s.Equal(ReasonNoPlayers, out.reason())

	s.waitQueueEmpty("chess")
	s.Equal(0, s.backend.WatcherCount())
}

func (s *MatchmakerSuite) TestCustomTimeout() {
	conn := s.backend.Connect()
	defer conn.Close()
	id := identity.Static{User: &model.User{ID: "uid-a"}}
	rnd := mocks.NewMockRandom()
	mm := New(conn, room.New(conn, id, rnd, testutil.NopLogger()), id, s.clock, rnd, testutil.NopLogger(), Config{Timeout: 5 * time.Second})

	out := &outcome{}
	search, err := mm.Matchmake(s.ctx, "chess", nil, out.matched, out.timedOut)
	s.Require().NoError(err)

	s.clock.Advance(5 * time.Second)
	s.waitDone(search)
	s.Equal(StateTimedOut, search.State())
}

func (s *MatchmakerSuite) TestCancelBeforeMatch() {
	c := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	search, out := s.search(c, "chess")
	s.NotNil(s.backend.Snapshot(QueuePath("chess")))

	search.Cancel()
	search.Cancel()
	s.waitDone(search)
	s.Equal(StateCancelled, search.State())

	s.clock.Advance(time.Minute)
	matches, timeouts := out.counts()
	s.Zero(matches)
	s.Zero(timeouts)
	s.Nil(s.backend.Snapshot(QueuePath("chess")))
	s.Equal(0, s.backend.WatcherCount())
	s.Equal(0, s.clock.PendingTimers())
}

func (s *MatchmakerSuite) TestCancelledEntryIsNotMatched() {
	a := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	b := s.newClient(&model.User{ID: "uid-b", Name: "B"})

	bSearch, bOut := s.search(b, "chess")
	bSearch.Cancel()

	aSearch, aOut := s.search(a, "chess")
	s.clock.Advance(30 * time.Second)
	s.waitDone(aSearch)

	s.Equal(StateTimedOut, aSearch.State())
	aMatches, _ := aOut.counts()
	bMatches, bTimeouts := bOut.counts()
	s.Zero(aMatches)
	s.Zero(bMatches)
	s.Zero(bTimeouts)
	s.Equal(0, s.roomCount())
}

func (s *MatchmakerSuite) TestCancelAfterMatchIsNoop() {
	x := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	x.random.QueueString("RM42")
	y := s.newClient(&model.User{ID: "uid-b", Name: "B"})

	xSearch, xOut := s.search(x, "chess")
	ySearch, yOut := s.search(y, "chess")
	s.waitDone(xSearch)
	s.waitDone(ySearch)

	xSearch.Cancel()
	ySearch.Cancel()

	s.Equal(StateMatchedAsHost, xSearch.State())
	s.Equal(StateMatchedAsGuest, ySearch.State())
	xMatches, xTimeouts := xOut.counts()
	yMatches, yTimeouts := yOut.counts()
	s.Equal(1, xMatches)
	s.Equal(1, yMatches)
	s.Zero(xTimeouts)
	s.Zero(yTimeouts)
}

func (s *MatchmakerSuite) TestThreeSeekersNeverDoublePair() {
	clients := []*client{
		s.newClient(&model.User{ID: "uid-a", Name: "A"}),
		s.newClient(&model.User{ID: "uid-b", Name: "B"}),
		s.newClient(&model.User{ID: "uid-c", Name: "C"}),
	}
	for i, c := range clients {
		c.random.QueueString("RM" + string(rune('A'+i)) + "1")
	}

	searches := make([]*Search, len(clients))
	outcomes := make([]*outcome, len(clients))
	for i, c := range clients {
		searches[i], outcomes[i] = s.search(c, "chess")
	}

	// Two of the three pair; the third keeps searching
	s.Eventually(func() bool {
		done := 0
		for _, search := range searches {
			if search.State().Terminal() {
				done++
			}
		}
		return done == 2
	}, testutil.WaitTimeout, testutil.PollInterval)

	hosts, guests := 0, 0
	for _, search := range searches {
		switch search.State() {
		case StateMatchedAsHost:
			hosts++
		case StateMatchedAsGuest:
			guests++
		}
	}
	s.Equal(1, hosts)
	s.Equal(1, guests)
	s.Eventually(func() bool { return s.roomCount() == 1 }, testutil.WaitTimeout, testutil.PollInterval)

	s.clock.Advance(30 * time.Second)
	for i, search := range searches {
		s.waitDone(search)
		matches, timeouts := outcomes[i].counts()
		s.Equal(1, matches+timeouts, "search %d", i)
	}
	s.waitQueueEmpty("chess")
	s.Equal(1, s.roomCount())
}

func (s *MatchmakerSuite) TestManySeekersPairUp() {
	const n = 6
	searches := make([]*Search, n)
	for i := 0; i < n; i++ {
		c := s.newClient(&model.User{ID: "uid-" + string(rune('a'+i)), Name: "P"})
		c.random.QueueString("R" + string(rune('A'+i)) + "ZZ")
		searches[i], _ = s.search(c, "chess")
	}

	s.Eventually(func() bool {
		for _, search := range searches {
			if !search.State().Terminal() {
				return false
			}
		}
		return true
	}, testutil.WaitTimeout, testutil.PollInterval)

	hosts, guests := 0, 0
	for _, search := range searches {
		switch search.State() {
		case StateMatchedAsHost:
			hosts++
		case StateMatchedAsGuest:
			guests++
		}
	}
	s.Equal(n/2, hosts)
	s.Equal(n/2, guests)
	s.waitQueueEmpty("chess")
	s.Equal(n/2, s.roomCount())
}

func (s *MatchmakerSuite) TestSameIdentityDoesNotMatchItself() {
	user := &model.User{ID: "uid-a", Name: "A"}
	first, firstOut := s.search(s.newClient(user), "chess")
	second, secondOut := s.search(s.newClient(user), "chess")

	s.clock.Advance(30 * time.Second)
	s.waitDone(first)
	s.waitDone(second)

	s.Equal(StateTimedOut, first.State())
	s.Equal(StateTimedOut, second.State())
	firstMatches, _ := firstOut.counts()
	secondMatches, _ := secondOut.counts()
	s.Zero(firstMatches + secondMatches)
}

func (s *MatchmakerSuite) TestQueuesAreSeparatedByGame() {
	a := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	b := s.newClient(&model.User{ID: "uid-b", Name: "B"})

	aSearch, _ := s.search(a, "chess")
	bSearch, _ := s.search(b, "go")

	s.clock.Advance(30 * time.Second)
	s.waitDone(aSearch)
	s.waitDone(bSearch)
	s.Equal(StateTimedOut, aSearch.State())
	s.Equal(StateTimedOut, bSearch.State())
}

func (s *MatchmakerSuite) TestDisconnectRemovesEntry() {
	c := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	s.search(c, "chess")
	s.NotNil(s.backend.Snapshot(QueuePath("chess")))

	s.Require().NoError(c.conn.Disconnect(s.ctx))
	s.Nil(s.backend.Snapshot(QueuePath("chess")))
}

func (s *MatchmakerSuite) TestDisconnectActionCancelledAfterMatch() {
	x := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	x.random.QueueString("RM42")
	y := s.newClient(&model.User{ID: "uid-b", Name: "B"})

	xSearch, _ := s.search(x, "chess")
	ySearch, _ := s.search(y, "chess")
	s.waitDone(xSearch)
	s.waitDone(ySearch)
	s.waitQueueEmpty("chess")

	// Something new at the old entry paths must survive both disconnects
	other := s.backend.Connect()
	s.Require().NoError(other.Write(s.ctx, "matchmaking/chess/"+xSearch.Key(), "reused"))
	s.Require().NoError(other.Write(s.ctx, "matchmaking/chess/"+ySearch.Key(), "reused"))
	s.Require().NoError(x.conn.Disconnect(s.ctx))
	s.Require().NoError(y.conn.Disconnect(s.ctx))

	s.Equal("reused", s.backend.Snapshot("matchmaking/chess/"+xSearch.Key()))
	s.Equal("reused", s.backend.Snapshot("matchmaking/chess/"+ySearch.Key()))
}

func (s *MatchmakerSuite) TestJoinFailureReportedThroughTimeout() {
	c := s.newClient(&model.User{ID: "uid-b", Name: "B"})
	search, out := s.search(c, "chess")

	// A peer assigns a room that does not exist
	s.Require().NoError(s.backend.Connect().Write(s.ctx,
		"matchmaking/chess/"+search.Key()+"/roomCode", "GONE"))

	s.waitDone(search)
	s.Equal(StateTimedOut, search.State())
	s.ErrorIs(search.Err(), model.ErrMatchmakingFailed)
	s.ErrorIs(search.Err(), model.ErrRoomNotFound)
	s.True(strings.HasPrefix(out.reason(), "Failed to join: "))
	s.waitQueueEmpty("chess")
}

func (s *MatchmakerSuite) TestCreateFailureReportedThroughTimeout() {
	initiator := s.newClientWithRoomStore(&model.User{ID: "uid-a", Name: "A"}, func(st store.Store) store.Store {
		return failingRoomStore{Store: st}
	})
	waiter := s.newClient(&model.User{ID: "uid-b", Name: "B"})

	waiterSearch, waiterOut := s.search(waiter, "chess")
	search, out := s.search(initiator, "chess")

	s.waitDone(search)
	s.Equal(StateTimedOut, search.State())
	s.ErrorIs(search.Err(), model.ErrMatchmakingFailed)
	s.True(strings.HasPrefix(out.reason(), "Failed to create room: "))

	// The waiting peer was never assigned and still times out normally
	s.Equal(StateSearching, waiterSearch.State())
	s.clock.Advance(30 * time.Second)
	s.waitDone(waiterSearch)
	s.Equal(ReasonNoPlayers, waiterOut.reason())
	s.Equal(0, s.roomCount())
}

func (s *MatchmakerSuite) TestPublishFailureReturnedDirectly() {
	c := s.newClient(&model.User{ID: "uid-a", Name: "A"})
	s.Require().NoError(c.conn.Close())

	_, err := c.matchmaker.Matchmake(s.ctx, "chess", nil, nil, nil)
	s.ErrorIs(err, store.ErrUnavailable)
}

func (s *MatchmakerSuite) TestEntryShape() {
	c := s.newClient(nil)
	c.random.QueueString("x1y2z3")
	search, _ := s.search(c, "chess")
	defer search.Cancel()

	var entry model.MatchmakingEntry
	s.Require().NoError(store.Decode(s.backend.Snapshot("matchmaking/chess/"+search.Key()), &entry))
	s.Equal(search.Key(), entry.Key)
	s.Equal("anon_x1y2z3", entry.UID)
	s.Equal(DefaultName, entry.Name)
	s.Equal(int64(1_700_000_000_000), entry.TS)
	s.False(entry.Consumed())
}

func (s *MatchmakerSuite) TestQueueWatchFailureEndsSearch() {
	conn := s.backend.Connect()
	s.T().Cleanup(func() { _ = conn.Close() })
	watches := &watchFailStore{Store: conn}

	id := identity.Static{User: &model.User{ID: "uid-a", Name: "A"}}
	rnd := mocks.NewMockRandom()
	rnd.Fallback = random.New()
	rooms := room.New(conn, id, rnd, testutil.NopLogger())
	matchmaker := New(watches, rooms, id, s.clock, rnd, testutil.NopLogger(), DefaultConfig())

	out := &outcome{}
	search, err := matchmaker.Matchmake(s.ctx, "chess", nil, out.matched, out.timedOut)
	s.Require().NoError(err)

	watches.fail(QueuePath("chess"), errors.New("boom"))
	s.waitDone(search)

	s.Equal(StateTimedOut, search.State())
	s.ErrorIs(search.Err(), model.ErrMatchmakingFailed)
	matches, timeouts := out.counts()
	s.Zero(matches)
	s.Equal(1, timeouts)
	s.Equal("Search failed: boom", out.reason())

	// A second failure on the ended search changes nothing
	watches.fail(QueuePath("chess"), errors.New("boom again"))
	_, timeouts = out.counts()
	s.Equal(1, timeouts)

	s.waitQueueEmpty("chess")
	s.Equal(0, s.roomCount())
	s.Equal(0, s.clock.PendingTimers())
}
