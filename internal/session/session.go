// Package session owns the authenticated identity and its credential: the
// single source of truth for who is using this client.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopfront/shopfront/internal/localstore"
	"github.com/shopfront/shopfront/internal/logging"
	"github.com/shopfront/shopfront/internal/models"
)

var ErrValidation = errors.New("validation")

type Session struct {
	mu       sync.RWMutex
	store    localstore.Store
	identity *models.Identity
	token    string

	// Invoked after a successful logout, while the store is already wiped.
	// The cart registers here so no in-memory lines outlive the identity.
	onLogout []func()
}

func New(store localstore.Store) *Session {
	return &Session{store: store}
}

func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Restore rebuilds the session from durable storage. Partial or malformed
// data fails safe: both keys are wiped and the session stays logged out.
func (s *Session) Restore(ctx context.Context) error {
	l := logging.FromContext(ctx).With("component", "session")

	token, errTok := s.store.Get(ctx, localstore.KeyToken)
	raw, errUser := s.store.Get(ctx, localstore.KeyUser)

	if errors.Is(errTok, localstore.ErrNoValue) || errors.Is(errUser, localstore.ErrNoValue) {
		if errTok == nil || errUser == nil {
			// one half of the pair survived, never restore from it
			l.Warn("partial session state, wiping")
			return s.wipe(ctx)
		}
		return nil
	}
	if errTok != nil {
		return errTok
	}
	if errUser != nil {
		return errUser
	}

	var id models.Identity
	if err := json.Unmarshal(raw, &id); err != nil || id.ID <= 0 {
		l.Warn("malformed identity in store, wiping", "error", err)
		return s.wipe(ctx)
	}

	if credentialExpired(string(token)) {
		l.Info("persisted credential expired, wiping")
		return s.wipe(ctx)
	}

	s.mu.Lock()
	s.identity = &id
	s.token = string(token)
	s.mu.Unlock()

	l.Debug("session restored", "user_id", id.ID, "role", id.Role)
	return nil
}

// Login persists the credential and identity both-or-neither and replaces
// any prior identity.
func (s *Session) Login(ctx context.Context, token string, id models.Identity) error {
	if token == "" {
		return fmt.Errorf("%w: empty credential", ErrValidation)
	}
	if id.ID <= 0 {
		return fmt.Errorf("%w: identity without id", ErrValidation)
	}

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, localstore.KeyToken, []byte(token)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, localstore.KeyUser, raw); err != nil {
		// roll back so the credential-iff-identity invariant holds on disk
		_ = s.store.Delete(ctx, localstore.KeyToken)
		return err
	}

	s.mu.Lock()
	s.identity = &id
	s.token = token
	s.mu.Unlock()

	logging.FromContext(ctx).Info("logged in", "user_id", id.ID, "role", id.Role)
	return nil
}

// Logout clears credential, identity and the persisted cart as one step.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.identity = nil
	s.token = ""
	hooks := s.onLogout
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	logging.FromContext(ctx).Info("logged out")
	return nil
}

// CurrentIdentity returns a copy of the active identity, or nil.
func (s *Session) CurrentIdentity() *models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.identity.Role == models.RoleAdmin
}

// Token implements api.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) wipe(ctx context.Context) error {
	if err := s.store.Delete(ctx, localstore.KeyToken); err != nil {
		return err
	}
	return s.store.Delete(ctx, localstore.KeyUser)
}

// credentialExpired peeks at the token without verifying it. The credential
// is opaque to the client; this only avoids restoring a session the service
// is guaranteed to reject. Non-JWT tokens pass through untouched.
func credentialExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
