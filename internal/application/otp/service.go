package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/pkg/id"
)

// casRetries bounds how often Consume re-reads an entry that changed under it.
const casRetries = 8

// Store persists at most one PendingVerification per identity.
// CompareAndSwap replaces old with next (or deletes when next is nil) only if
// the stored entry is still the same generation as old.
type Store interface {
	Put(ctx context.Context, v *domain.PendingVerification) error
	Get(ctx context.Context, identityID string) (*domain.PendingVerification, error)
	Delete(ctx context.Context, identityID string) error
	CompareAndSwap(ctx context.Context, old, next *domain.PendingVerification) (bool, error)
}

// Issued is a freshly generated code. Code is the only place the plaintext
// exists; the store keeps its hash.
type Issued struct {
	Code      string
	ExpiresAt time.Time
}

type Service interface {
	Issue(ctx context.Context, identityID string) (*Issued, error)
	Verify(ctx context.Context, identityID, code string) error
	// Consume is Verify with onMatch run between the match and the consuming
	// write. If onMatch fails the entry is left as it was and no attempt is
	// counted, so the same code can be submitted again.
	Consume(ctx context.Context, identityID, code string, onMatch func(context.Context) error) error
}

type Config struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

type service struct {
	store Store
	cfg   Config
	now   func() time.Time
}

type ServiceDeps struct {
	Store  Store
	Config Config
	Now    func() time.Time
}

func NewService(deps ServiceDeps) Service {
	cfg := deps.Config
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{store: deps.Store, cfg: cfg, now: now}
}

func (s *service) Issue(ctx context.Context, identityID string) (*Issued, error) {
	code, err := generateCode(s.cfg.Length)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.TTL)
	v := &domain.PendingVerification{
		IdentityID: identityID,
		EntryID:    id.NewAt(now),
		CodeHash:   hashCode(code),
		ExpiresAt:  expiresAt.Unix(),
	}
	if err := s.store.Put(ctx, v); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}
	return &Issued{Code: code, ExpiresAt: time.Unix(v.ExpiresAt, 0)}, nil
}

func (s *service) Verify(ctx context.Context, identityID, code string) error {
	return s.Consume(ctx, identityID, code, nil)
}

func (s *service) Consume(ctx context.Context, identityID, code string, onMatch func(context.Context) error) error {
	submitted := hashCode(strings.TrimSpace(code))
	for range casRetries {
		v, err := s.store.Get(ctx, identityID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrOTPNotFound
		}
		if err != nil {
			return fmt.Errorf("load otp: %w", err)
		}

		if s.now().Unix() > v.ExpiresAt {
			if _, err := s.store.CompareAndSwap(ctx, v, nil); err != nil {
				slog.Warn("failed to purge expired otp", "identity_id", identityID, "err", err)
			}
			return domain.ErrOTPExpired
		}

		if subtle.ConstantTimeCompare([]byte(v.CodeHash), []byte(submitted)) == 1 {
			if onMatch != nil {
				if err := onMatch(ctx); err != nil {
					return err
				}
			}
			ok, err := s.store.CompareAndSwap(ctx, v, nil)
			if err != nil {
				return fmt.Errorf("consume otp: %w", err)
			}
			if ok {
				return nil
			}
			continue
		}

		next := *v
		next.Attempts++
		var swapTo *domain.PendingVerification
		if next.Attempts < s.cfg.MaxAttempts {
			swapTo = &next
		}
		ok, err := s.store.CompareAndSwap(ctx, v, swapTo)
		if err != nil {
			return fmt.Errorf("record otp attempt: %w", err)
		}
		if !ok {
			continue
		}
		if swapTo == nil {
			return domain.ErrOTPTooManyAttempts
		}
		return domain.ErrOTPMismatch
	}
	return fmt.Errorf("otp entry contended: %w", domain.ErrInternal)
}

// generateCode returns a zero-padded numeric code of n digits.
func generateCode(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
