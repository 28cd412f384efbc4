package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// writeKeyPair generates a fresh RSA key pair and writes both halves as PEM
// files into a temp directory that is removed when the test completes.
func writeKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))
	return privPath, pubPath
}

func TestNewProvider_RSAFromFiles_RoundTrip(t *testing.T) {
	privPath, pubPath := writeKeyPair(t)
	p, err := NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTIssuer:         "test",
	})
	require.NoError(t, err)

	signed, issued, err := p.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)

	claims, err := p.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "id-1", claims.IdentityID)
	assert.Equal(t, domain.TokenAccess, claims.Type)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.Equal(t, issued.ExpiresAt, claims.ExpiresAt)
}

func TestNewProvider_MissingKeyFile(t *testing.T) {
	_, err := NewProvider(&config.Config{JWTPrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
	assert.ErrorContains(t, err, "read private key")
}

func TestNewProvider_SecretSelectsHMAC(t *testing.T) {
	p, err := NewProvider(&config.Config{JWTSecret: testSecret, JWTIssuer: "test"})
	require.NoError(t, err)
	signed, _, err := p.Sign("id-1", domain.TokenRefresh, time.Hour)
	require.NoError(t, err)

	tok, _, err := jwt.NewParser().ParseUnverified(signed, &Claims{})
	require.NoError(t, err)
	assert.Equal(t, "HS256", tok.Method.Alg())
}

func TestNewHMACProvider_RejectsShortSecret(t *testing.T) {
	_, err := NewHMACProvider([]byte("short"), "test")
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	p, err := NewHMACProvider([]byte(testSecret), "test", WithClock(clock))
	require.NoError(t, err)

	signed, _, err := p.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = p.Verify(signed)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired), "got %v", err)
}

func TestVerify_Malformed(t *testing.T) {
	p, err := NewHMACProvider([]byte(testSecret), "test")
	require.NoError(t, err)
	_, err = p.Verify("not-a-real-token")
	assert.True(t, errors.Is(err, domain.ErrTokenMalformed), "got %v", err)
}

func TestVerify_TamperedSignature(t *testing.T) {
	p, err := NewHMACProvider([]byte(testSecret), "test")
	require.NoError(t, err)
	signed, _, err := p.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = p.Verify(parts[0] + "." + parts[1] + "." + string(sig))
	assert.True(t, errors.Is(err, domain.ErrTokenBadSignature), "got %v", err)
}

func TestVerify_OtherKeyIsBadSignature(t *testing.T) {
	a, err := NewHMACProvider([]byte(testSecret), "test")
	require.NoError(t, err)
	b, err := NewHMACProvider([]byte("fedcba9876543210fedcba9876543210"), "test")
	require.NoError(t, err)

	signed, _, err := a.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)
	_, err = b.Verify(signed)
	assert.True(t, errors.Is(err, domain.ErrTokenBadSignature), "got %v", err)
}

func TestVerify_AlgorithmConfusionRejected(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaProvider := NewRSAProvider(privKey, &privKey.PublicKey, "test")
	hmacProvider, err := NewHMACProvider([]byte(testSecret), "test")
	require.NoError(t, err)

	signed, _, err := hmacProvider.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)
	_, err = rsaProvider.Verify(signed)
	assert.True(t, errors.Is(err, domain.ErrTokenBadSignature), "got %v", err)
}

func TestSign_UniqueTokenIDs(t *testing.T) {
	p, err := NewHMACProvider([]byte(testSecret), "test")
	require.NoError(t, err)
	_, a, err := p.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)
	_, b, err := p.Sign("id-1", domain.TokenAccess, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a.TokenID, b.TokenID)
}
