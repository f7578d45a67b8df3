package memory

import (
	"context"
	"sync"
	"time"
)

// RevocationStore is the in-process denylist used when Redis is not configured.
type RevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // token id -> expiry
	now     func() time.Time
}

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{entries: make(map[string]time.Time), now: time.Now}
}

func (s *RevocationStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[tokenID] = now.Add(ttl)

	// opportunistic sweep keeps the map bounded by live tokens
	for id, exp := range s.entries {
		if !exp.After(now) {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *RevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !exp.After(s.now()) {
		delete(s.entries, tokenID)
		return false, nil
	}
	return true, nil
}
