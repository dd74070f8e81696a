package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gamesync/internal/dependencies/clock"
	"github.com/mcoot/gamesync/internal/dependencies/random"
	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/store"
)

const (
	usersPath = "users"

	// AnonymousName is the display name given to anonymous sign-ins
	AnonymousName = "Player"

	userIDLength = 12
)

// account is the stored form of a local account
type account struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// Local is an identity provider that keeps accounts in the shared store
type Local struct {
	store  store.Store
	clock  clock.Clock
	random random.Random
	logger *slog.Logger

	mu        sync.RWMutex
	user      *model.User
	listeners listeners
}

// Ensure Local implements Provider
var _ Provider = (*Local)(nil)

// NewLocal creates a local provider with nobody signed in
func NewLocal(st store.Store, clk clock.Clock, rnd random.Random, logger *slog.Logger) *Local {
	return &Local{
		store:  st,
		clock:  clk,
		random: rnd,
		logger: logger.With(slog.String("component", "identity")),
	}
}

// CurrentUser returns a copy of the signed-in user, or nil
func (l *Local) CurrentUser() *model.User {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.user == nil {
		return nil
	}
	u := *l.user
	return &u
}

// OnAuthChange registers fn for sign-in and sign-out events
func (l *Local) OnAuthChange(fn func(*model.User)) func() {
	return l.listeners.add(fn)
}

// SetUser replaces the signed-in user with one resolved elsewhere
func (l *Local) SetUser(user *model.User) {
	l.mu.Lock()
	if user != nil {
		u := *user
		user = &u
	}
	l.user = user
	l.mu.Unlock()

	l.listeners.notify(l.CurrentUser())
}

// SignInAnonymously signs in a fresh anonymous identity
func (l *Local) SignInAnonymously() *model.User {
	user := &model.User{
		ID:        "anon_" + l.random.String(userIDLength, random.Base36),
		Name:      AnonymousName,
		Anonymous: true,
	}
	l.SetUser(user)
	l.logger.Info("signed in anonymously", slog.String("uid", user.ID))
	return l.CurrentUser()
}

// Register creates an account and signs it in
func (l *Local) Register(ctx context.Context, username, password, displayName string) (*model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := store.ValidateKey(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return nil, model.ErrInvalidCredentials
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acct := account{
		UID:          "u_" + l.random.String(userIDLength, random.Base36),
		Name:         displayName,
		PasswordHash: string(hash),
		CreatedAt:    l.clock.Now().UnixMilli(),
	}

	committed, err := l.store.Transaction(ctx, store.Join(usersPath, username), func(current any) (any, error) {
		if current != nil {
			return nil, store.ErrTxAborted
		}
		return acct, nil
	})
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, model.ErrUsernameExists
	}

	user := &model.User{ID: acct.UID, Name: acct.Name}
	l.SetUser(user)
	l.logger.Info("registered account", slog.String("username", username), slog.String("uid", user.ID))
	return l.CurrentUser(), nil
}

// SignIn verifies a password and signs the account in
func (l *Local) SignIn(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if err := store.ValidateKey(username); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	raw, err := l.store.Read(ctx, store.Join(usersPath, username))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, model.ErrInvalidCredentials
	}
	var acct account
	if err := store.Decode(raw, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	user := &model.User{ID: acct.UID, Name: acct.Name}
	l.SetUser(user)
	return l.CurrentUser(), nil
}

// SignOut clears the signed-in user
func (l *Local) SignOut() {
	l.SetUser(nil)
}

// RequireUser returns the signed-in user or ErrNotSignedIn
func RequireUser(p Provider) (*model.User, error) {
	user := p.CurrentUser()
	if user == nil {
		return nil, model.ErrNotSignedIn
	}
	return user, nil
}
