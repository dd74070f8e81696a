// Package identity resolves who the local client is. The coordination
// services only consume the Provider interface; Local is a self-contained
// provider backed by the shared store.
package identity

import (
	"sync"

	"github.com/mcoot/gamesync/internal/model"
)

// Provider reports the signed-in user and announces changes to it
type Provider interface {
	// CurrentUser returns the signed-in user, or nil
	CurrentUser() *model.User

	// OnAuthChange registers fn to run whenever the signed-in user changes.
	// The returned function removes the registration.
	OnAuthChange(fn func(*model.User)) func()
}

// listeners is the auth-change registry shared by providers
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(*model.User)
}

func (l *listeners) add(fn func(*model.User)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(*model.User))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
		})
	}
}

func (l *listeners) notify(user *model.User) {
	l.mu.Lock()
	fns := make([]func(*model.User), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

// Static is a Provider with a fixed user, nil meaning nobody is signed in
type Static struct {
	User *model.User
}

// CurrentUser returns the fixed user
func (s Static) CurrentUser() *model.User {
	return s.User
}

// OnAuthChange never fires for a fixed user
func (s Static) OnAuthChange(fn func(*model.User)) func() {
	return func() {}
}
