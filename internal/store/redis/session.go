package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gamesync/internal/store"
)

// pendingAction is the stored form of a disconnect action
type pendingAction struct {
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

type disconnectAction struct {
	store *Store
	id    string
}

// Cancel withdraws the action
func (a *disconnectAction) Cancel(ctx context.Context) error {
	s := a.store
	if err := s.client.HDel(ctx, actionsKey(s.cfg.KeyPrefix, s.sessionID), a.id).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// OnDisconnect queues a write to apply once this session stops heartbeating.
// Server timestamps in value resolve when the action runs.
func (s *Store) OnDisconnect(ctx context.Context, path string, value any) (store.DisconnectAction, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := splitBucket(segs); err != nil {
		return nil, err
	}
	v, err := store.Normalize(value)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(pendingAction{Path: store.Join(segs...), Value: v})
	if err != nil {
		return nil, err
	}

	now, err := s.serverNow(ctx)
	if err != nil {
		return nil, err
	}

	id := store.NewKey()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, actionsKey(s.cfg.KeyPrefix, s.sessionID), id, data)
	pipe.ZAdd(ctx, sessionsKey(s.cfg.KeyPrefix), redis.Z{
		Score:  float64(now),
		Member: s.sessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}
	return &disconnectAction{store: s, id: id}, nil
}

// Heartbeat marks this session alive. Liveness is scored on the Redis clock,
// so hosts whose clocks disagree still agree on which sessions are dead.
func (s *Store) Heartbeat(ctx context.Context) error {
	now, err := s.serverNow(ctx)
	if err != nil {
		return err
	}
	err = s.client.ZAdd(ctx, sessionsKey(s.cfg.KeyPrefix), redis.Z{
		Score:  float64(now),
		Member: s.sessionID,
	}).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Sweep applies the disconnect actions of every session whose heartbeat is
// older than the session timeout. Sessions are claimed with ZREM so
// concurrent sweepers never apply the same session twice. It returns the
// number of sessions swept.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	now, err := s.serverNow(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := now - s.cfg.SessionTimeout.Milliseconds()
	ids, err := s.client.ZRangeByScore(ctx, sessionsKey(s.cfg.KeyPrefix), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	swept := 0
	for _, id := range ids {
		applied, err := s.applySession(ctx, id)
		if err != nil {
			return swept, err
		}
		if applied {
			swept++
		}
	}
	if swept > 0 {
		s.logger.Info("swept dead sessions", slog.Int("sessions", swept))
	}
	return swept, nil
}

// applySession claims a session and runs its actions in registration order
func (s *Store) applySession(ctx context.Context, sessionID string) (bool, error) {
	claimed, err := s.client.ZRem(ctx, sessionsKey(s.cfg.KeyPrefix), sessionID).Result()
	if err != nil {
		return false, unavailable(err)
	}
	if claimed == 0 {
		return false, nil
	}

	key := actionsKey(s.cfg.KeyPrefix, sessionID)
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return false, unavailable(err)
	}

	// Action ids are time-ordered keys, so sorting restores registration order
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var action pendingAction
		if err := json.Unmarshal([]byte(raw[id]), &action); err != nil {
			s.logger.Warn("skipping malformed disconnect action",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.write(ctx, action.Path, action.Value); err != nil {
			return true, err
		}
	}
	return true, nil
}

// write is Write without the closed check, used while shutting down
func (s *Store) write(ctx context.Context, path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	v, err := store.Normalize(value)
	if err != nil {
		return err
	}
	if v, err = s.resolve(ctx, v); err != nil {
		return err
	}
	_, err = s.mutate(ctx, segs, func(doc any, rel []string) (any, error) {
		return store.SetAt(doc, rel, store.Clone(v)), nil
	})
	return err
}

// Disconnect applies this session's disconnect actions immediately and closes
// the store, as a client going offline deliberately would
func (s *Store) Disconnect(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return nil
	}
	if _, err := s.applySession(ctx, s.sessionID); err != nil {
		s.logger.Warn("applying disconnect actions failed", slog.String("error", err.Error()))
	}
	return s.Close()
}

func (s *Store) startBackground() {
	s.every(s.cfg.HeartbeatInterval, "heartbeat", s.Heartbeat)
	if s.cfg.SweepInterval > 0 {
		s.every(s.cfg.SweepInterval, "sweep", func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		})
	}
}

// every runs fn once per interval on the store's clock until Close
func (s *Store) every(interval time.Duration, name string, fn func(ctx context.Context) error) {
	if interval <= 0 {
		return
	}
	var tick func()
	tick = func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		if err := fn(ctx); err != nil {
			s.logger.Warn(name+" failed", slog.String("error", err.Error()))
		}
		cancel()

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.timers[name] = s.clock.AfterFunc(interval, tick)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[name] = s.clock.AfterFunc(interval, tick)
}
