package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-auth-otp/internal/domain"
)

type contextKey string

const IdentityKey contextKey = "identity"

// AccessTokenCookie carries the access token for browser clients.
const AccessTokenCookie = "accessToken"

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.Identity, error)
}

// Auth returns middleware that resolves the access token to a verified
// identity and injects it into the request context.
func Auth(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing access token")
				return
			}
			ident, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			ctx := context.WithValue(r.Context(), IdentityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken returns the Bearer token from the Authorization header, falling
// back to the access token cookie.
func AccessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// IdentityFromContext extracts the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	ident, ok := ctx.Value(IdentityKey).(*domain.Identity)
	return ident, ok
}
