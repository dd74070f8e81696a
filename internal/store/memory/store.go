package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
	"github.com/mcoot/gamesync/internal/store"
)

// Backend is an in-memory tree shared by any number of connections. It plays
// the part of the remote store: each Conn is one client's connection to it.
type Backend struct {
	mu       sync.Mutex
	root     any
	clock    clock.Clock
	logger   *slog.Logger
	watchers map[*watcher]struct{}
}

// NewBackend creates an empty shared tree
func NewBackend(clk clock.Clock, logger *slog.Logger) *Backend {
	return &Backend{
		clock:    clk,
		logger:   logger.With(slog.String("component", "memstore")),
		watchers: make(map[*watcher]struct{}),
	}
}

// Connect opens a new client connection to the backend
func (b *Backend) Connect() *Conn {
	return &Conn{
		backend: b,
		actions: make(map[*disconnectAction]struct{}),
		subs:    make(map[*watcher]struct{}),
	}
}

// Snapshot returns a copy of the value at path, bypassing any connection
func (b *Backend) Snapshot(path string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return store.Clone(store.GetAt(b.root, store.Split(path)))
}

// WatcherCount returns the number of live watches across all connections
func (b *Backend) WatcherCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers)
}

// set stores a normalised value and notifies watchers. Caller holds b.mu.
func (b *Backend) set(segs []string, v any) {
	if store.HasServerValues(v) {
		v = store.ResolveServerValues(v, b.clock.Now().UnixMilli())
	}
	b.root = store.SetAt(b.root, segs, v)
}

// notify delivers the new value to every watcher whose path overlaps segs.
// Caller holds b.mu, which keeps deliveries in mutation order.
func (b *Backend) notify(segs []string) {
	for w := range b.watchers {
		if !store.Related(w.segs, segs) {
			continue
		}
		v := store.GetAt(b.root, w.segs)
		if store.Equal(v, w.last) {
			continue
		}
		w.last = store.Clone(v)
		w.deliver(store.Clone(v))
	}
}

// Conn is one client's connection to a Backend
type Conn struct {
	backend *Backend

	mu      sync.Mutex
	closed  bool
	actions map[*disconnectAction]struct{}
	order   []*disconnectAction
	subs    map[*watcher]struct{}
}

// Ensure Conn implements the interface
var _ store.Client = (*Conn)(nil)

func (c *Conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", store.ErrUnavailable)
	}
	return nil
}

func parsePath(path string) ([]string, error) {
	segs := store.Split(path)
	if err := store.ValidatePath(segs); err != nil {
		return nil, err
	}
	return segs, nil
}

// Read returns a copy of the value at path
func (c *Conn) Read(ctx context.Context, path string) (any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	return store.Clone(store.GetAt(b.root, segs)), nil
}

// Write replaces the node at path
func (c *Conn) Write(ctx context.Context, path string, value any) error {
	if err := c.checkOpen(); err != nil {
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
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set(segs, v)
	b.notify(segs)
	return nil
}

// Update merges fields into the node at path under a single lock
func (c *Conn) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := c.checkOpen(); err != nil {
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
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range normalized {
		b.set(append(append([]string{}, segs...), store.Split(k)...), v)
	}
	b.notify(segs)
	return nil
}

// Remove deletes the node at path
func (c *Conn) Remove(ctx context.Context, path string) error {
	return c.Write(ctx, path, nil)
}

// Transaction runs fn against the current value while holding the tree lock.
// fn must not call back into the store.
func (c *Conn) Transaction(ctx context.Context, path string, fn store.TxFunc) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return false, err
	}
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(store.Clone(store.GetAt(b.root, segs)))
	if errors.Is(err, store.ErrTxAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	v, err := store.Normalize(next)
	if err != nil {
		return false, err
	}
	b.set(segs, v)
	b.notify(segs)
	return true, nil
}

// GenerateKey returns a new time-ordered child key
func (c *Conn) GenerateKey(path string) string {
	return store.NewKey()
}

// Disconnect simulates connection loss: queued disconnect actions are applied
// in registration order and this connection's watches stop
func (c *Conn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	actions := make([]*disconnectAction, 0, len(c.order))
	for _, a := range c.order {
		if _, ok := c.actions[a]; ok {
			actions = append(actions, a)
		}
	}
	c.actions = make(map[*disconnectAction]struct{})
	c.order = nil
	subs := c.subs
	c.subs = make(map[*watcher]struct{})
	c.mu.Unlock()

	for w := range subs {
		w.Unwatch()
	}

	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range actions {
		b.set(a.segs, store.Clone(a.value))
		b.notify(a.segs)
	}
	if len(actions) > 0 {
		b.logger.Debug("applied disconnect actions", slog.Int("count", len(actions)))
	}
	return nil
}

// Close disconnects the connection
func (c *Conn) Close() error {
	return c.Disconnect(context.Background())
}
