package testutil

import (
	"sync"

	"github.com/mcoot/gamesync/internal/store"
)

// WatchRecorder collects every value delivered to a watch callback
type WatchRecorder struct {
	mu     sync.Mutex
	values []any
	errs   []error
}

// Func returns the callback to pass to Store.Watch
func (r *WatchRecorder) Func() store.WatchFunc {
	return func(value any, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.errs = append(r.errs, err)
			return
		}
		r.values = append(r.values, value)
	}
}

// Values returns the values delivered so far, oldest first
func (r *WatchRecorder) Values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.values...)
}

// Count returns the number of values delivered so far
func (r *WatchRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the most recent value, or nil
func (r *WatchRecorder) Last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return nil
	}
	return r.values[len(r.values)-1]
}

// Errors returns the errors delivered so far
func (r *WatchRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
