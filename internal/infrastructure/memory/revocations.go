package memory

import (
	"context"
	"sync"
	"time"
)

// RevocationStore records revoked token IDs and per-identity revocation
// epochs. Reads take the shared lock so validation does not serialize.
type RevocationStore struct {
	mu         sync.RWMutex
	tokens     map[string]time.Time // jti -> retain until
	identities map[string]epoch
}

type epoch struct {
	at    time.Time
	until time.Time
}

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{
		tokens:     make(map[string]time.Time),
		identities: make(map[string]epoch),
	}
}

func (s *RevocationStore) RevokeToken(_ context.Context, tokenID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tokens[tokenID]; !ok || until.After(cur) {
		s.tokens[tokenID] = until
	}
	return nil
}

func (s *RevocationStore) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[tokenID]
	return ok, nil
}

func (s *RevocationStore) RevokeIdentity(_ context.Context, identityID string, at, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.identities[identityID]
	if ok && !at.After(cur.at) {
		return nil
	}
	s.identities[identityID] = epoch{at: at, until: until}
	return nil
}

func (s *RevocationStore) IdentityRevokedAt(_ context.Context, identityID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.identities[identityID]
	return e.at, ok, nil
}

// purgeExpired drops records that can no longer match an unexpired token.
func (s *RevocationStore) purgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, until := range s.tokens {
		if now.After(until) {
			delete(s.tokens, k)
			n++
		}
	}
	for k, e := range s.identities {
		if now.After(e.until) {
			delete(s.identities, k)
			n++
		}
	}
	return n
}
