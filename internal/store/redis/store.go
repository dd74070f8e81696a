package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
	"github.com/mcoot/gamesync/internal/store"
)

// Store is a Redis-backed implementation of the shared store. Subtrees are
// kept as JSON documents, one per bucket (see bucketDepth); every write runs
// as an optimistic WATCH/MULTI transaction on a single document and publishes
// the bucket's change channel.
type Store struct {
	client    *redis.Client
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
	sessionID string

	mu     sync.Mutex
	closed bool
	subs   map[*watcher]struct{}
	timers map[string]clock.Timer
	wg     sync.WaitGroup
}

// New creates a new Redis store instance
func New(cfg Config, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(err)
	}

	return NewWithClient(client, cfg, clk, logger), nil
}

// NewWithClient creates a Redis store with an existing client (for testing).
// The store owns the client from here on and closes it on Close.
func NewWithClient(client *redis.Client, cfg Config, clk clock.Clock, logger *slog.Logger) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	s := &Store{
		client:    client,
		cfg:       cfg,
		clock:     clk,
		sessionID: uuid.NewString(),
		subs:      make(map[*watcher]struct{}),
		timers:    make(map[string]clock.Timer),
	}
	s.logger = logger.With(slog.String("component", "redisstore"), slog.String("session", s.sessionID))
	s.startBackground()
	return s
}

// Ensure Store implements the interface
var _ store.Client = (*Store)(nil)

// SessionID identifies this client's connection for disconnect bookkeeping
func (s *Store) SessionID() string {
	return s.sessionID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", store.ErrUnavailable)
	}
	return nil
}

func parsePath(path string) ([]string, error) {
	segs := store.Split(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: root path", store.ErrInvalidPath)
	}
	if err := store.ValidatePath(segs); err != nil {
		return nil, err
	}
	return segs, nil
}

// serverNow returns the Redis server clock in milliseconds
func (s *Store) serverNow(ctx context.Context) (int64, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return t.UnixMilli(), nil
}

// resolve replaces server placeholders in v using the Redis clock
func (s *Store) resolve(ctx context.Context, v any) (any, error) {
	if !store.HasServerValues(v) {
		return v, nil
	}
	now, err := s.serverNow(ctx)
	if err != nil {
		return nil, err
	}
	return store.ResolveServerValues(v, now), nil
}

// callerError carries an error raised by a mutation callback rather than Redis
type callerError struct {
	err error
}

func (e *callerError) Error() string { return e.err.Error() }

func (e *callerError) Unwrap() error { return e.err }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getDoc(ctx context.Context, c getter, key string) (any, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", key, err)
	}
	return doc, nil
}

// mutate rewrites the document holding segs. fn receives the current
// document and the path relative to it and returns the replacement.
func (s *Store) mutate(ctx context.Context, segs []string, fn func(doc any, rel []string) (any, error)) (bool, error) {
	bucket, rel, err := splitBucket(segs)
	if err != nil {
		return false, err
	}
	prefix := s.cfg.KeyPrefix
	key := docKey(prefix, bucket)
	indexKey := bucketIndexKey(prefix, segs[0])
	ttl := s.cfg.TTL[segs[0]]

	txf := func(tx *redis.Tx) error {
		doc, err := getDoc(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(doc, append([]string{}, rel...))
		if err != nil {
			return &callerError{err: err}
		}
		var data []byte
		if next != nil {
			if data, err = json.Marshal(next); err != nil {
				return &callerError{err: err}
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, indexKey, segs[1])
			} else {
				pipe.Set(ctx, key, data, ttl)
				pipe.SAdd(ctx, indexKey, segs[1])
			}
			pipe.Publish(ctx, changesChannel(prefix, bucket), store.Join(segs...))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.cfg.MaxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var ce *callerError
		if errors.As(err, &ce) {
			if errors.Is(ce.err, store.ErrTxAborted) {
				return false, nil
			}
			return false, ce.err
		}
		if errors.Is(err, store.ErrUnavailable) {
			return false, err
		}
		return false, unavailable(err)
	}
	s.logger.Warn("optimistic transaction retries exhausted", slog.String("path", store.Join(segs...)))
	return false, store.ErrContention
}

// Read returns the value at path. One-segment paths aggregate every bucket
// beneath them.
func (s *Store) Read(ctx context.Context, path string) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) < bucketDepth {
		return s.readTop(ctx, segs[0])
	}
	bucket, rel, _ := splitBucket(segs)
	doc, err := getDoc(ctx, s.client, docKey(s.cfg.KeyPrefix, bucket))
	if err != nil {
		return nil, err
	}
	return store.GetAt(doc, rel), nil
}

func (s *Store) readTop(ctx context.Context, top string) (any, error) {
	names, err := s.client.SMembers(ctx, bucketIndexKey(s.cfg.KeyPrefix, top)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = docKey(s.cfg.KeyPrefix, store.Join(top, name))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	result := make(map[string]any, len(values))
	for i, val := range values {
		raw, ok := val.(string)
		if !ok {
			continue // Document expired; index entry is stale
		}
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		result[names[i]] = doc
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// Write replaces the node at path
func (s *Store) Write(ctx context.Context, path string, value any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
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

// Update merges fields into the node at path in one transaction
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	normalized, err := store.NormalizeFields(fields)
	if err != nil {
		return err
	}
	for k, v := range normalized {
		if normalized[k], err = s.resolve(ctx, v); err != nil {
			return err
		}
	}
	_, err = s.mutate(ctx, segs, func(doc any, rel []string) (any, error) {
		for k, v := range normalized {
			target := append(append([]string{}, rel...), store.Split(k)...)
			doc = store.SetAt(doc, target, store.Clone(v))
		}
		return doc, nil
	})
	return err
}

// Remove deletes the node at path
func (s *Store) Remove(ctx context.Context, path string) error {
	return s.Write(ctx, path, nil)
}

// Transaction applies fn optimistically, re-running it if the document changes
// before the write commits
func (s *Store) Transaction(ctx context.Context, path string, fn store.TxFunc) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return false, err
	}
	return s.mutate(ctx, segs, func(doc any, rel []string) (any, error) {
		next, err := fn(store.Clone(store.GetAt(doc, rel)))
		if err != nil {
			return nil, err
		}
		v, err := store.Normalize(next)
		if err != nil {
			return nil, err
		}
		if v, err = s.resolve(ctx, v); err != nil {
			return nil, err
		}
		return store.SetAt(doc, rel, v), nil
	})
}

// GenerateKey returns a new time-ordered child key
func (s *Store) GenerateKey(path string) string {
	return store.NewKey()
}

// Close stops background work, ends all watches and closes the Redis client.
// Registered disconnect actions stay queued until a sweep finds the session dead.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[*watcher]struct{})
	for _, t := range s.timers {
		t.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	for w := range subs {
		w.Unwatch()
	}
	return s.client.Close()
}
