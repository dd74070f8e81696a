// Package store defines the shared key-value store that clients coordinate
// through. Nodes are addressed by slash-separated paths and hold JSON-shaped
// values; a node with no value and no children is absent.
package store

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps transport and connectivity failures
	ErrUnavailable = errors.New("store unavailable")
	// ErrTxAborted is returned by a TxFunc to abandon a transaction without writing
	ErrTxAborted = errors.New("transaction aborted")
	// ErrInvalidPath is returned for paths the backend cannot address
	ErrInvalidPath = errors.New("invalid store path")
	// ErrContention is returned when an optimistic write kept losing races
	ErrContention = errors.New("too much contention on store path")
)

// WatchFunc receives the full current value of a watched path. value is nil
// when the path is absent. A non-nil err ends the subscription.
type WatchFunc func(value any, err error)

// TxFunc computes the next value of a node from its current value. Returning
// ErrTxAborted leaves the node untouched; nil deletes it.
type TxFunc func(current any) (any, error)

// Subscription is a standing watch registration
type Subscription interface {
	// Unwatch stops delivery. No callback starts after Unwatch returns; it is
	// safe to call more than once and from inside the callback.
	Unwatch()
}

// DisconnectAction is a write the store performs if this client's connection drops
type DisconnectAction interface {
	// Cancel withdraws the action. Cancelling twice is a no-op.
	Cancel(ctx context.Context) error
}

// Store is the contract the coordination protocols are written against
type Store interface {
	// Read returns the value at path, or nil if absent
	Read(ctx context.Context, path string) (any, error)

	// Write replaces the node at path. A nil value removes it.
	Write(ctx context.Context, path string, value any) error

	// Update merges fields into the node at path atomically: either every
	// field is applied or none. Keys may be slash-separated relative paths;
	// a nil field value removes that child.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Remove deletes the node at path
	Remove(ctx context.Context, path string) error

	// Transaction atomically replaces the node at path with fn's result,
	// re-running fn if the node changed concurrently. It reports whether a
	// write was committed.
	Transaction(ctx context.Context, path string, fn TxFunc) (bool, error)

	// Watch delivers the value at path now and after every change to it or
	// any descendant, in the order changes were applied
	Watch(ctx context.Context, path string, fn WatchFunc) (Subscription, error)

	// OnDisconnect registers a write of value at path (nil removes) to be
	// applied by the store once this client's connection is lost
	OnDisconnect(ctx context.Context, path string, value any) (DisconnectAction, error)

	// GenerateKey returns a new child key, unique under path and ordered by
	// creation time
	GenerateKey(path string) string
}

// Client is a Store bound to one connection
type Client interface {
	Store

	// Disconnect drops the connection as if it were lost: registered
	// disconnect actions run and watches stop
	Disconnect(ctx context.Context) error

	// Close releases resources. Pending disconnect actions are left for the
	// store to apply.
	Close() error
}
