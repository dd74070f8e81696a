package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gamesync/internal/store"
)

// refreshTimeout bounds the re-read a watcher performs after a change notice
const refreshTimeout = 5 * time.Second

// watcher follows one path through its bucket's change channel. Each notice
// triggers a re-read; unchanged values are not redelivered.
type watcher struct {
	store      *Store
	path       string
	fn         store.WatchFunc
	pubsub     *redis.PubSub
	dispatcher store.Dispatcher

	// delivered and last are only touched from the dispatcher goroutine
	delivered bool
	last      any

	once sync.Once
}

// Watch subscribes to the bucket holding path and delivers its current value
func (s *Store) Watch(ctx context.Context, path string, fn store.WatchFunc) (store.Subscription, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	bucket, _, err := splitBucket(segs)
	if err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, changesChannel(s.cfg.KeyPrefix, bucket))
	// Wait for the subscription to be confirmed so no change is missed
	// between the initial read and the first notice
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, unavailable(err)
	}

	w := &watcher{
		store:  s,
		path:   store.Join(segs...),
		fn:     fn,
		pubsub: pubsub,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = pubsub.Close()
		return nil, store.ErrUnavailable
	}
	s.subs[w] = struct{}{}
	s.mu.Unlock()

	w.dispatcher.Submit(w.refresh)
	go w.listen()
	return w, nil
}

func (w *watcher) listen() {
	for range w.pubsub.Channel() {
		w.dispatcher.Submit(w.refresh)
	}
}

func (w *watcher) refresh() {
	if w.dispatcher.Stopped() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	v, err := w.store.Read(ctx, w.path)
	if w.dispatcher.Stopped() {
		return
	}
	if err != nil {
		w.store.logger.Warn("watch read failed, ending subscription",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		w.fn(nil, err)
		w.Unwatch()
		return
	}
	if w.delivered && store.Equal(v, w.last) {
		return
	}
	w.delivered = true
	w.last = store.Clone(v)
	w.fn(v, nil)
}

// Unwatch stops delivery and closes the subscription's connection
func (w *watcher) Unwatch() {
	w.once.Do(func() {
		w.dispatcher.Stop()
		_ = w.pubsub.Close()

		s := w.store
		s.mu.Lock()
		delete(s.subs, w)
		s.mu.Unlock()
	})
}
