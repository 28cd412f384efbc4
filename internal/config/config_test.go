package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 6, cfg.OTPLength)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.False(t, cfg.LogoutRevokeRefresh)
	assert.False(t, cfg.TrustProxyHeaders)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("OTP_TTL", "12m")
	t.Setenv("LOGOUT_REVOKE_REFRESH", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := Load()
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 12*time.Minute, cfg.OTPTTL)
	assert.True(t, cfg.LogoutRevokeRefresh)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_IgnoresUnparsableValues(t *testing.T) {
	t.Setenv("OTP_LENGTH", "six")
	t.Setenv("CALL_TIMEOUT", "soon")
	cfg := Load()
	assert.Equal(t, 6, cfg.OTPLength)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
}

func TestValidate_RefreshMustOutliveAccess(t *testing.T) {
	cfg := Load()
	cfg.RefreshTokenTTL = cfg.AccessTokenTTL
	assert.ErrorContains(t, cfg.Validate(), "REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
}

func TestValidate_OTPWindowAndBackend(t *testing.T) {
	cfg := Load()
	cfg.OTPTTL = time.Hour
	cfg.StoreBackend = "etcd"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "OTP_TTL must be between 5m and 15m")
	assert.ErrorContains(t, err, `unknown STORE_BACKEND "etcd"`)
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := Load()
	cfg.JWTSecret = "too-short"
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET must be at least 32 bytes")
}

func TestValidate_OTPRequestLimit(t *testing.T) {
	t.Setenv("OTP_REQUEST_BURST", "0")
	cfg := Load()
	assert.ErrorContains(t, cfg.Validate(), "OTP_REQUEST_BURST must be positive")
}
