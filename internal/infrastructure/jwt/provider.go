package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the JWT payload fields. The identity travels in "sub" and the
// token identifier used for revocation in "jti".
type Claims struct {
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Provider signs and verifies access and refresh JWTs. It uses RS256 with a
// PEM key pair, or HS256 when a shared secret is configured.
type Provider struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	issuer    string
	now       func() time.Time
}

// Option customises a Provider.
type Option func(*Provider)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func NewProvider(cfg *config.Config, opts ...Option) (*Provider, error) {
	if cfg.JWTSecret != "" {
		return NewHMACProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, opts...)
	}

	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return NewRSAProvider(privKey, pubKey, cfg.JWTIssuer, opts...), nil
}

func NewRSAProvider(priv *rsa.PrivateKey, pub *rsa.PublicKey, issuer string, opts ...Option) *Provider {
	return newProvider(jwt.SigningMethodRS256, priv, pub, issuer, opts)
}

func NewHMACProvider(secret []byte, issuer string, opts ...Option) (*Provider, error) {
	if len(secret) < 32 {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	return newProvider(jwt.SigningMethodHS256, secret, secret, issuer, opts), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey interface{}, issuer string, opts []Option) *Provider {
	p := &Provider{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sign mints a token of the given type for identityID, valid for ttl.
func (p *Provider) Sign(identityID string, typ domain.TokenType, ttl time.Duration) (string, *domain.Claims, error) {
	now := p.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    p.issuer,
			ID:        id.NewAt(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(p.method, claims)
	signed, err := token.SignedString(p.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, toDomain(&claims), nil
}

// Verify checks structure, signature and expiry. Failures wrap
// domain.ErrTokenMalformed, domain.ErrTokenBadSignature or domain.ErrTokenExpired.
func (p *Provider) Verify(tokenStr string) (*domain.Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("invalid token claims: %w", domain.ErrTokenMalformed)
	}
	return toDomain(claims), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%v: %w", err, domain.ErrTokenMalformed)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%v: %w", err, domain.ErrTokenBadSignature)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%v: %w", err, domain.ErrTokenExpired)
	default:
		return fmt.Errorf("%v: %w", err, domain.ErrTokenMalformed)
	}
}

func toDomain(c *Claims) *domain.Claims {
	out := &domain.Claims{
		IdentityID: c.Subject,
		Type:       c.Type,
		TokenID:    c.ID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
