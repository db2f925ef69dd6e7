package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sessionTokenBytes = 32

// ErrNoSession is returned when a user has no active session.
var ErrNoSession = errors.New("no active session")

// TokenStore persists the one-token-per-user session registry. The redis
// client satisfies it; the in-memory store is the zero-infrastructure
// default.
type TokenStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	SessionKey(userID string) string
	IsMissing(err error) bool
}

// Manager tracks the single active session per user. Mutations initiated
// under an older session token are dropped by Validate, which is the guard
// against delayed updates landing after a logout.
type Manager struct {
	store TokenStore
	ttl   time.Duration
}

// NewManager builds a session manager over the provided store.
func NewManager(store TokenStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Begin issues a fresh session token for the user, superseding any prior
// session.
func (m *Manager) Begin(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}
	token, err := generateSessionToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.store.SessionKey(userID.String()), token, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Validate reports whether the provided token is still the user's current
// session. Comparison is constant time.
func (m *Manager) Validate(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	if userID == uuid.Nil || token == "" {
		return false, nil
	}
	current, err := m.store.Get(ctx, m.store.SessionKey(userID.String()))
	if err != nil {
		if m.store.IsMissing(err) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(token)) == 1, nil
}

// End revokes the user's session.
func (m *Manager) End(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	return m.store.Del(ctx, m.store.SessionKey(userID.String()))
}

// HasSession reports whether the user currently holds a session.
func (m *Manager) HasSession(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	if _, err := m.store.Get(ctx, m.store.SessionKey(userID.String())); err != nil {
		if m.store.IsMissing(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func generateSessionToken() (string, error) {
	bytes := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
