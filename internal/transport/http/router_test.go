package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-auth-otp/internal/application/session"
	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSessions struct {
	mock.Mock
	session.Service
}

func (m *mockSessions) Authenticate(ctx context.Context, accessToken string) (*domain.Identity, error) {
	args := m.Called(ctx, accessToken)
	if ident, _ := args.Get(0).(*domain.Identity); ident != nil {
		return ident, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessions) ResendOTP(ctx context.Context, identityRef string) (*session.Outcome, error) {
	args := m.Called(ctx, identityRef)
	return args.Get(0).(*session.Outcome), args.Error(1)
}

func newTestRouter(t *testing.T, svc session.Service, opts ...func(*config.Config)) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	metrics.NewRecorder(reg).Observe("login", nil, 0)

	cfg := config.Load()
	cfg.OTPRequestBurst = 1
	for _, opt := range opts {
		opt(cfg)
	}
	return NewRouter(ctx, cfg, &Deps{Sessions: svc, Gatherer: reg})
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, &mockSessions{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `auth_operations_total{operation="login",outcome="success"} 1`)
}

func TestRouter_MeRequiresToken(t *testing.T) {
	svc := &mockSessions{}
	r := newTestRouter(t, svc)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	svc.On("Authenticate", mock.Anything, "acc").Return(&domain.Identity{IdentityID: "u1", Verified: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer acc")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"u1"`)
}

func TestRouter_ResendIsThrottled(t *testing.T) {
	svc := &mockSessions{}
	svc.On("ResendOTP", mock.Anything, "u1").Return(&session.Outcome{IdentityID: "u1", OTPDelivered: true}, nil)
	r := newTestRouter(t, svc)

	send := func() int {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/auth/resend-otp", strings.NewReader(`{"userId":"u1"}`)))
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	svc.AssertNumberOfCalls(t, "ResendOTP", 1)
}

func TestRouter_ResendThrottleKeysOnForwardedClientWhenTrusted(t *testing.T) {
	svc := &mockSessions{}
	svc.On("ResendOTP", mock.Anything, "u1").Return(&session.Outcome{IdentityID: "u1", OTPDelivered: true}, nil)
	r := newTestRouter(t, svc, func(c *config.Config) { c.TrustProxyHeaders = true })

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/resend-otp", strings.NewReader(`{"userId":"u1"}`))
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
}

func TestRouter_ResendThrottleIgnoresForwardedForByDefault(t *testing.T) {
	svc := &mockSessions{}
	svc.On("ResendOTP", mock.Anything, "u1").Return(&session.Outcome{IdentityID: "u1", OTPDelivered: true}, nil)
	r := newTestRouter(t, svc)

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/resend-otp", strings.NewReader(`{"userId":"u1"}`))
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"))
	svc.AssertNumberOfCalls(t, "ResendOTP", 1)
}

func TestRouter_UnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t, &mockSessions{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/users", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
