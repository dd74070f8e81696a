package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mcoot/gamesync/internal/store"
)

type watcher struct {
	conn       *Conn
	segs       []string
	fn         store.WatchFunc
	dispatcher store.Dispatcher

	// last is the most recently delivered value, guarded by the backend lock
	last any

	once sync.Once
}

func (w *watcher) deliver(v any) {
	w.dispatcher.Submit(func() {
		if w.dispatcher.Stopped() {
			return
		}
		w.fn(v, nil)
	})
}

// Unwatch stops delivery and deregisters the watch
func (w *watcher) Unwatch() {
	w.once.Do(func() {
		w.dispatcher.Stop()

		b := w.conn.backend
		b.mu.Lock()
		delete(b.watchers, w)
		b.mu.Unlock()

		w.conn.mu.Lock()
		delete(w.conn.subs, w)
		w.conn.mu.Unlock()
	})
}

// Watch registers fn for the value at path, delivering the current value first
func (c *Conn) Watch(ctx context.Context, path string, fn store.WatchFunc) (store.Subscription, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	w := &watcher{conn: c, segs: segs, fn: fn}

	c.mu.Lock()
	c.subs[w] = struct{}{}
	c.mu.Unlock()

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers[w] = struct{}{}
	w.last = store.Clone(store.GetAt(b.root, segs))
	w.deliver(store.Clone(w.last))
	return w, nil
}

type disconnectAction struct {
	conn  *Conn
	segs  []string
	value any
}

// Cancel withdraws the action
func (a *disconnectAction) Cancel(ctx context.Context) error {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.actions, a)
	c.order = slices.DeleteFunc(c.order, func(other *disconnectAction) bool {
		return other == a
	})
	return nil
}

// OnDisconnect queues a write to apply when this connection is lost.
// Server timestamps in value resolve when the action runs.
func (c *Conn) OnDisconnect(ctx context.Context, path string, value any) (store.DisconnectAction, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	v, err := store.Normalize(value)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, store.ErrUnavailable
	}
	a := &disconnectAction{conn: c, segs: segs, value: v}
	c.actions[a] = struct{}{}
	c.order = append(c.order, a)
	return a, nil
}
