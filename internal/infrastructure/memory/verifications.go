package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-auth-otp/internal/domain"
)

// VerificationStore keeps pending OTP entries in a map. All operations hold
// one mutex, so compare-and-set is trivially atomic.
type VerificationStore struct {
	mu      sync.Mutex
	entries map[string]domain.PendingVerification
}

func NewVerificationStore() *VerificationStore {
	return &VerificationStore{entries: make(map[string]domain.PendingVerification)}
}

func (s *VerificationStore) Put(_ context.Context, v *domain.PendingVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[v.IdentityID] = *v
	return nil
}

func (s *VerificationStore) Get(_ context.Context, identityID string) (*domain.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[identityID]
	if !ok {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	return &v, nil
}

func (s *VerificationStore) Delete(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identityID)
	return nil
}

func (s *VerificationStore) CompareAndSwap(_ context.Context, old, next *domain.PendingVerification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[old.IdentityID]
	if !ok || !cur.SameGeneration(old) {
		return false, nil
	}
	if next == nil {
		delete(s.entries, old.IdentityID)
	} else {
		s.entries[old.IdentityID] = *next
	}
	return true, nil
}

// purgeExpired drops entries whose expiry passed before now.
func (s *VerificationStore) purgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.entries {
		if now.Unix() > v.ExpiresAt {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
