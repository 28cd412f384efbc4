package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-auth-otp/internal/domain"
)

// IdentityRepo is an in-process identity table with a unique email index.
type IdentityRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.Identity
	byEmail map[string]string
}

func NewIdentityRepo() *IdentityRepo {
	return &IdentityRepo{
		byID:    make(map[string]domain.Identity),
		byEmail: make(map[string]string),
	}
}

func (r *IdentityRepo) Create(_ context.Context, ident *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(ident.Email)
	if _, taken := r.byEmail[email]; taken {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if _, taken := r.byID[ident.IdentityID]; taken {
		return fmt.Errorf("identity exists: %w", domain.ErrConflict)
	}
	r.byID[ident.IdentityID] = *ident
	r.byEmail[email] = ident.IdentityID
	return nil
}

func (r *IdentityRepo) Get(_ context.Context, identityID string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.byID[identityID]
	if !ok {
		return nil, fmt.Errorf("identity not found: %w", domain.ErrNotFound)
	}
	return &ident, nil
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	identityID, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("identity not found: %w", domain.ErrNotFound)
	}
	return r.Get(ctx, identityID)
}

func (r *IdentityRepo) MarkVerified(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.byID[identityID]
	if !ok {
		return fmt.Errorf("identity not found: %w", domain.ErrNotFound)
	}
	ident.Verified = true
	ident.UpdatedAt = time.Now().UTC()
	r.byID[identityID] = ident
	return nil
}
