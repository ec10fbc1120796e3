package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionPrefix = "session:"

// SessionStore keeps sessions in the shared cache keyed by session reference.
type SessionStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSessionStore(c cache.Cache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: c, ttl: ttl}
}

// Create assigns a fresh reference to session, stores it and returns the
// reference.
func (s *SessionStore) Create(ctx context.Context, session *Session) (string, error) {
	now := time.Now()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(s.ttl)

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.cache.Set(ctx, sessionPrefix+session.ID, data, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return session.ID, nil
}

// Get returns the session for ref or ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, ref string) (*Session, error) {
	data, err := s.cache.Get(ctx, sessionPrefix+ref)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, ref string) error {
	return s.cache.Delete(ctx, sessionPrefix+ref)
}

// TTL is the lifetime of new sessions and of the session cookie.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}
