package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrKeyMissing is what the memory store returns for absent or expired keys.
var ErrKeyMissing = errors.New("session key missing")

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the default TokenStore. It keeps expiry timestamps rather
// than timers so reads decide staleness lazily.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore builds an empty in-process token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := memoryEntry{value: fmt.Sprint(value)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return "", ErrKeyMissing
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrKeyMissing
	}
	return entry.value, nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) SessionKey(userID string) string {
	return "session:" + userID
}

func (s *MemoryStore) IsMissing(err error) bool {
	return errors.Is(err, ErrKeyMissing)
}
