package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/room"
	"github.com/mcoot/gamesync/internal/store"
)

// State is the outcome of a search
type State int

const (
	StateSearching State = iota
	StateMatchedAsHost
	StateMatchedAsGuest
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateMatchedAsHost:
		return "matched-as-host"
	case StateMatchedAsGuest:
		return "matched-as-guest"
	case StateTimedOut:
		return "timed-out"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s != StateSearching
}

// phase tracks what a searching client is busy with
type phase int

const (
	phaseSearching  phase = iota
	phaseInitiating       // creating a room for the chosen candidate
	phaseJoining          // joining a room a peer assigned us
	phaseDone
)

// Search is a running matchmaking attempt
type Search struct {
	m         *Matchmaker
	ctx       context.Context
	cancelCtx context.CancelFunc

	gameID       string
	initialState map[string]any
	onMatched    MatchedFunc
	onTimeout    TimeoutFunc

	uid       string
	name      string
	key       string
	queue     string
	entryPath string
	logger    *slog.Logger

	mu       sync.Mutex
	phase    phase
	state    State
	err      error
	expired  bool           // the timer fired mid-initiation
	assigned model.RoomCode // a peer assigned us mid-initiation
	ownSub   store.Subscription
	queueSub store.Subscription
	timer    clock.Timer
	action   store.DisconnectAction
	done     chan struct{}

	releaseOnce sync.Once
	doneOnce    sync.Once
}

// start registers the disconnect cleanup, the timer and both watches. On
// failure the search is left in the cancelled state.
func (s *Search) start(ctx context.Context) (err error) {
	st := s.m.store

	// Callbacks wait for setup to finish
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if err != nil {
			s.conclude(StateCancelled, err)
			s.closeDone()
		}
	}()

	if s.action, err = st.OnDisconnect(ctx, s.entryPath, nil); err != nil {
		return fmt.Errorf("register queue cleanup: %w", err)
	}

	s.timer = s.m.clock.AfterFunc(s.m.timeout, s.expire)

	if s.ownSub, err = st.Watch(ctx, s.entryPath, s.onOwnEntry); err != nil {
		return fmt.Errorf("watch queue entry: %w", err)
	}
	if s.queueSub, err = st.Watch(ctx, s.queue, s.onQueue); err != nil {
		return fmt.Errorf("watch queue: %w", err)
	}
	return nil
}

// Key returns the store key of this search's queue entry
func (s *Search) Key() string {
	return s.key
}

// UID returns the identity this search queued under
func (s *Search) UID() string {
	return s.uid
}

// State returns the current outcome
func (s *Search) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns why a search ended without a match, or nil
func (s *Search) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the search has reached a terminal state, released its
// resources and run its callback
func (s *Search) Done() <-chan struct{} {
	return s.done
}

func (s *Search) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Cancel stops the search and removes its queue entry. It never invokes
// either callback and may be called any number of times.
func (s *Search) Cancel() {
	s.mu.Lock()
	if s.phase == phaseDone {
		s.mu.Unlock()
		return
	}
	s.conclude(StateCancelled, nil)
	s.mu.Unlock()

	s.cancelCtx()
	s.release(true)
	s.closeDone()
	s.logger.Info("search cancelled")
}

// conclude moves to a terminal state. Caller holds s.mu.
func (s *Search) conclude(state State, err error) {
	s.phase = phaseDone
	s.state = state
	s.err = err
}

// release stops the timer and the watches, withdraws the disconnect action
// and optionally removes the queue entry. Failures are logged and ignored.
func (s *Search) release(removeEntry bool) {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		timer, ownSub, queueSub, action := s.timer, s.ownSub, s.queueSub, s.action
		s.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if ownSub != nil {
			ownSub.Unwatch()
		}
		if queueSub != nil {
			queueSub.Unwatch()
		}

		ctx := context.WithoutCancel(s.ctx)
		if action != nil {
			if err := action.Cancel(ctx); err != nil {
				s.logger.Warn("failed to cancel queue cleanup", slog.String("error", err.Error()))
			}
		}
		if removeEntry {
			if err := s.m.store.Remove(ctx, s.entryPath); err != nil {
				s.logger.Warn("failed to remove queue entry", slog.String("error", err.Error()))
			}
		}
	})
}

// fail ends the search through the timeout callback
func (s *Search) fail(reason string, err error) {
	s.mu.Lock()
	if s.phase == phaseDone {
		s.mu.Unlock()
		return
	}
	s.conclude(StateTimedOut, err)
	s.mu.Unlock()

	s.release(true)
	s.logger.Info("search ended without a match", slog.String("reason", reason))
	if s.onTimeout != nil {
		s.onTimeout(reason)
	}
	s.closeDone()
}

func (s *Search) expire() {
	s.mu.Lock()
	switch s.phase {
	case phaseSearching:
		s.mu.Unlock()
		s.fail(ReasonNoPlayers, model.ErrNoPlayersFound)
	case phaseInitiating:
		s.expired = true
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

func (s *Search) watchFailed(err error) {
	s.fail("Search failed: "+err.Error(), fmt.Errorf("%w: %w", model.ErrMatchmakingFailed, err))
}

// onOwnEntry waits for a peer to write a room code into our entry
func (s *Search) onOwnEntry(value any, err error) {
	if err != nil {
		s.watchFailed(err)
		return
	}
	if value == nil {
		return
	}
	var entry model.MatchmakingEntry
	if err := store.Decode(value, &entry); err != nil || !entry.Consumed() {
		return
	}

	s.mu.Lock()
	switch s.phase {
	case phaseSearching:
		s.phase = phaseJoining
		s.mu.Unlock()
		s.join(entry.RoomCode)
	case phaseInitiating:
		// Our own transaction will abort; pick this up afterwards
		s.assigned = entry.RoomCode
		s.mu.Unlock()
	default:
		s.mu.Unlock()
	}
}

// onQueue considers the oldest unclaimed peer each time the queue changes
func (s *Search) onQueue(value any, err error) {
	if err != nil {
		s.watchFailed(err)
		return
	}

	s.mu.Lock()
	if s.phase != phaseSearching {
		s.mu.Unlock()
		return
	}
	if nodes, _ := value.(map[string]any); !unclaimed(nodes[s.key]) {
		// Already assigned (the entry watch will act on it) or withdrawn
		s.mu.Unlock()
		return
	}
	candidate, ok := s.oldestCandidate(value)
	if !ok || s.uid >= candidate.UID {
		// Nobody to pair with, or the candidate is the one to initiate
		s.mu.Unlock()
		return
	}
	s.phase = phaseInitiating
	s.mu.Unlock()

	s.initiate(candidate)
}

// oldestCandidate returns the longest-waiting entry that is not ours, not
// another search by the same identity and not yet claimed
func (s *Search) oldestCandidate(queue any) (model.MatchmakingEntry, bool) {
	nodes, ok := queue.(map[string]any)
	if !ok {
		return model.MatchmakingEntry{}, false
	}
	var candidates []model.MatchmakingEntry
	for key, node := range nodes {
		if key == s.key {
			continue
		}
		var entry model.MatchmakingEntry
		if err := store.Decode(node, &entry); err != nil {
			continue
		}
		entry.Key = key
		if entry.UID == "" || entry.UID == s.uid || entry.Consumed() {
			continue
		}
		candidates = append(candidates, entry)
	}
	if len(candidates) == 0 {
		return model.MatchmakingEntry{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].TS != candidates[j].TS {
			return candidates[i].TS < candidates[j].TS
		}
		return candidates[i].Key < candidates[j].Key
	})
	return candidates[0], true
}

// initiate creates a room and, in one transaction on the queue, hands its code
// to the candidate and withdraws our entry
func (s *Search) initiate(candidate model.MatchmakingEntry) {
	s.logger.Debug("initiating match", slog.String("candidate", candidate.UID))

	session, _, err := s.m.rooms.Create(s.ctx, s.gameID, s.initialState)
	if err != nil {
		s.fail("Failed to create room: "+err.Error(), fmt.Errorf("%w: create room: %w", model.ErrMatchmakingFailed, err))
		return
	}
	code := session.Code()

	committed, err := s.m.store.Transaction(s.ctx, s.queue, func(current any) (any, error) {
		nodes, ok := current.(map[string]any)
		if !ok {
			return nil, store.ErrTxAborted
		}
		if !unclaimed(nodes[s.key]) || !unclaimed(nodes[candidate.Key]) {
			return nil, store.ErrTxAborted
		}
		nodes[candidate.Key].(map[string]any)["roomCode"] = string(code)
		delete(nodes, s.key)
		return nodes, nil
	})
	if err != nil {
		s.discardRoom(session)
		s.fail("Failed to create room: "+err.Error(), fmt.Errorf("%w: assign room: %w", model.ErrMatchmakingFailed, err))
		return
	}
	if !committed {
		s.discardRoom(session)
		s.resume()
		return
	}

	s.mu.Lock()
	if s.phase == phaseDone {
		// Cancelled mid hand-off; the peer still joins the room we made
		s.mu.Unlock()
		session.Leave()
		return
	}
	s.conclude(StateMatchedAsHost, nil)
	s.mu.Unlock()

	s.release(false)
	s.logger.Info("matched as host",
		slog.String("code", string(code)),
		slog.String("opponent", candidate.UID))
	if s.onMatched != nil {
		s.onMatched(Match{Code: code, Player: model.PlayerHost, Session: session})
	}
	s.closeDone()
}

func unclaimed(node any) bool {
	entry, ok := node.(map[string]any)
	if !ok {
		return false
	}
	code, _ := entry["roomCode"].(string)
	return code == ""
}

// discardRoom removes a room whose hand-off did not happen
func (s *Search) discardRoom(session *room.Session) {
	session.Leave()
	if err := s.m.rooms.Remove(context.WithoutCancel(s.ctx), session.Code()); err != nil {
		s.logger.Warn("failed to remove unused room",
			slog.String("code", string(session.Code())),
			slog.String("error", err.Error()))
	}
}

// resume returns to searching after a lost hand-off, honouring whatever
// happened meanwhile
func (s *Search) resume() {
	s.logger.Debug("hand-off lost to a concurrent claim, resuming search")

	s.mu.Lock()
	switch {
	case s.phase == phaseDone:
		s.mu.Unlock()
	case s.assigned != "":
		code := s.assigned
		s.phase = phaseJoining
		s.mu.Unlock()
		s.join(code)
	case s.expired:
		s.phase = phaseSearching
		s.mu.Unlock()
		s.fail(ReasonNoPlayers, model.ErrNoPlayersFound)
	default:
		s.phase = phaseSearching
		s.mu.Unlock()
	}
}

// join takes the guest seat of the room a peer assigned to us
func (s *Search) join(code model.RoomCode) {
	s.release(true)

	session, joined, err := s.m.rooms.Join(s.ctx, code)

	s.mu.Lock()
	if s.phase == phaseDone {
		s.mu.Unlock()
		if session != nil {
			session.Leave()
		}
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.fail("Failed to join: "+err.Error(), fmt.Errorf("%w: join room: %w", model.ErrMatchmakingFailed, err))
		return
	}
	s.conclude(StateMatchedAsGuest, nil)
	s.mu.Unlock()

	s.logger.Info("matched as guest", slog.String("code", string(code)))
	if s.onMatched != nil {
		s.onMatched(Match{Code: code, Player: model.PlayerGuest, Room: joined, Session: session})
	}
	s.closeDone()
}
