package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/pkg/id"
	"github.com/go-auth-otp/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// Service owns identities and their password hashes.
type Service interface {
	CreateIdentity(ctx context.Context, req domain.RegisterRequest) (*domain.Identity, error)
	GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)
	MarkVerified(ctx context.Context, identityID string) error
	CheckPassword(ctx context.Context, identityID, password string) (bool, error)
}

type identityRepo interface {
	Create(ctx context.Context, ident *domain.Identity) error
	Get(ctx context.Context, identityID string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	MarkVerified(ctx context.Context, identityID string) error
}

type service struct {
	repo identityRepo
	cost int
}

type ServiceDeps struct {
	IdentityRepo identityRepo
	// BcryptCost defaults to bcrypt.DefaultCost. Tests lower it to bcrypt.MinCost.
	BcryptCost int
}

func NewService(deps ServiceDeps) Service {
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{repo: deps.IdentityRepo, cost: cost}
}

func (s *service) CreateIdentity(ctx context.Context, req domain.RegisterRequest) (*domain.Identity, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w: %w", domain.ErrValidation, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ident := &domain.Identity{
		IdentityID:   id.New(),
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, ident); err != nil {
		// Lost a race against a concurrent registration for the same email.
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("email already registered: %w: %w", domain.ErrValidation, domain.ErrConflict)
		}
		return nil, err
	}
	return ident, nil
}

func (s *service) GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error) {
	return s.repo.Get(ctx, identityID)
}

func (s *service) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (s *service) MarkVerified(ctx context.Context, identityID string) error {
	return s.repo.MarkVerified(ctx, identityID)
}

// CheckPassword reports whether password matches the stored hash. A mismatch
// is not an error.
func (s *service) CheckPassword(ctx context.Context, identityID, password string) (bool, error) {
	ident, err := s.repo.Get(ctx, identityID)
	if err != nil {
		return false, err
	}
	err = bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
