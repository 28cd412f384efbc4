package handler

import (
	"net/http"
	"time"

	"github.com/go-auth-otp/internal/transport/http/middleware"
)

const (
	userIDCookie       = "userId"
	refreshTokenCookie = "refreshToken"

	userIDCookieTTL = 24 * time.Hour
)

// CookieOptions controls the auth cookies. Lifetimes match the token TTLs.
type CookieOptions struct {
	// Secure marks cookies Secure with SameSite=None for cross-site clients;
	// otherwise SameSite=Lax is used.
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (o CookieOptions) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if o.Secure {
		c.SameSite = http.SameSiteNoneMode
	}
	if ttl > 0 {
		c.Expires = time.Now().Add(ttl)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

func (o CookieOptions) setUserID(w http.ResponseWriter, identityID string) {
	http.SetCookie(w, o.cookie(userIDCookie, identityID, userIDCookieTTL))
}

func (o CookieOptions) setAccessToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, o.cookie(middleware.AccessTokenCookie, token, o.AccessTTL))
}

func (o CookieOptions) setRefreshToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, o.cookie(refreshTokenCookie, token, o.RefreshTTL))
}

func (o CookieOptions) clearAuth(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie, userIDCookie} {
		http.SetCookie(w, o.cookie(name, "", 0))
	}
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
