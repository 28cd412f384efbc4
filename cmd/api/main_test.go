package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logLevel("warn"))
	assert.Equal(t, slog.LevelError, logLevel("error"))
	assert.Equal(t, slog.LevelInfo, logLevel("verbose"))
}

func TestOpenBackend_Memory(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := config.Load()
	cfg.StoreBackend = config.BackendMemory
	cfg.ReapInterval = time.Hour

	b, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)
	defer b.close()

	ident, err := b.credentials.CreateIdentity(context.Background(), domain.RegisterRequest{Email: "a@b.com", Password: "password123"})
	require.NoError(t, err)
	_, err = b.verifications.Get(context.Background(), ident.IdentityID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
