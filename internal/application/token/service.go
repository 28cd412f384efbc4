package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/pkg/id"
)

// RevocationStore records tokens that must be rejected before their natural
// expiry. Records only need to outlive the tokens they match (until).
type RevocationStore interface {
	RevokeToken(ctx context.Context, tokenID string, until time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	RevokeIdentity(ctx context.Context, identityID string, at, until time.Time) error
	IdentityRevokedAt(ctx context.Context, identityID string) (time.Time, bool, error)
}

type signer interface {
	Sign(identityID string, typ domain.TokenType, ttl time.Duration) (string, *domain.Claims, error)
	Verify(token string) (*domain.Claims, error)
}

type Service interface {
	IssueAccessToken(identityID string) (string, error)
	IssueRefreshToken(identityID string) (string, error)
	IssuePair(identityID string) (*domain.TokenPair, error)
	Validate(ctx context.Context, token string, expected domain.TokenType) (*domain.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Revoke(ctx context.Context, identityID, accessToken string) error
}

type service struct {
	signer        signer
	revocations   RevocationStore
	accessTTL     time.Duration
	refreshTTL    time.Duration
	revokeRefresh bool
	now           func() time.Time
}

type ServiceDeps struct {
	Signer      signer
	Revocations RevocationStore
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	// RevokeRefreshOnLogout extends Revoke to every token issued to the
	// presented token's subject up to the revocation instant.
	RevokeRefreshOnLogout bool
	Now                   func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		signer:        deps.Signer,
		revocations:   deps.Revocations,
		accessTTL:     deps.AccessTTL,
		refreshTTL:    deps.RefreshTTL,
		revokeRefresh: deps.RevokeRefreshOnLogout,
		now:           now,
	}
}

func (s *service) IssueAccessToken(identityID string) (string, error) {
	tok, _, err := s.signer.Sign(identityID, domain.TokenAccess, s.accessTTL)
	return tok, err
}

func (s *service) IssueRefreshToken(identityID string) (string, error) {
	tok, _, err := s.signer.Sign(identityID, domain.TokenRefresh, s.refreshTTL)
	return tok, err
}

func (s *service) IssuePair(identityID string) (*domain.TokenPair, error) {
	access, accessClaims, err := s.signer.Sign(identityID, domain.TokenAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.signer.Sign(identityID, domain.TokenRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// Validate returns the token's claims, or an error wrapping one of
// ErrTokenMalformed, ErrTokenBadSignature, ErrTokenExpired,
// ErrTokenWrongType or ErrTokenRevoked. Revocation lookups that fail wrap
// ErrInternal instead.
func (s *service) Validate(ctx context.Context, token string, expected domain.TokenType) (*domain.Claims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != expected {
		return nil, fmt.Errorf("want %s token, got %q: %w", expected, claims.Type, domain.ErrTokenWrongType)
	}
	revoked, err := s.revocations.IsTokenRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("revocation lookup: %v: %w", err, domain.ErrInternal)
	}
	if revoked {
		return nil, fmt.Errorf("token %s: %w", claims.TokenID, domain.ErrTokenRevoked)
	}
	at, ok, err := s.revocations.IdentityRevokedAt(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("revocation lookup: %v: %w", err, domain.ErrInternal)
	}
	if ok && !issuedAt(claims).After(at.Truncate(time.Millisecond)) {
		return nil, fmt.Errorf("identity tokens revoked: %w", domain.ErrTokenRevoked)
	}
	return claims, nil
}

// issuedAt reads the issuance instant from the jti, whose ULID timestamp has
// millisecond precision. "iat" only has seconds.
func issuedAt(c *domain.Claims) time.Time {
	if t, ok := id.Time(c.TokenID); ok {
		return t
	}
	return c.IssuedAt
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Validate(ctx, refreshToken, domain.TokenRefresh)
	if err != nil {
		return "", err
	}
	return s.IssueAccessToken(claims.IdentityID)
}

// Revoke is idempotent: tokens that fail verification are already unusable
// and are ignored. identityID is only used for logging; the identity-wide
// epoch is bound to the verified subject of the token.
func (s *service) Revoke(ctx context.Context, identityID, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	claims, err := s.signer.Verify(accessToken)
	if err != nil {
		slog.Debug("ignoring revocation of unusable token", "identity_id", identityID, "err", err)
		return nil
	}
	if identityID != "" && identityID != claims.IdentityID {
		slog.Warn("revoked token subject differs from identity reference", "identity_id", identityID, "subject", claims.IdentityID)
	}
	if err := s.revocations.RevokeToken(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %v: %w", err, domain.ErrInternal)
	}
	if s.revokeRefresh {
		now := s.now()
		if err := s.revocations.RevokeIdentity(ctx, claims.IdentityID, now, now.Add(s.refreshTTL)); err != nil {
			return fmt.Errorf("revoke identity tokens: %v: %w", err, domain.ErrInternal)
		}
	}
	return nil
}
