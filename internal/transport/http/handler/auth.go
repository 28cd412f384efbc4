package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-auth-otp/internal/application/session"
	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/transport/http/middleware"
)

// AuthHandler exposes the register/verify/login/refresh/logout flow. The
// identity reference and tokens travel in http-only cookies; request bodies
// may carry them for clients without a cookie jar.
type AuthHandler struct {
	svc     session.Service
	cookies CookieOptions
}

func NewAuthHandler(svc session.Service, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

type verifyEmailRequest struct {
	OTP    string `json:"otp"`
	UserID string `json:"userId"`
}

type identityRefRequest struct {
	UserID string `json:"userId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.cookies.setUserID(w, out.IdentityID)
	writeJSON(w, http.StatusCreated, otpEnvelope(out, "OTP sent to email"))
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.VerifyEmail(r.Context(), identityRef(r, req.UserID), req.OTP)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.cookies.setAccessToken(w, out.Tokens.AccessToken)
	h.cookies.setRefreshToken(w, out.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Email verified and user logged in"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.cookies.setUserID(w, out.IdentityID)
	writeJSON(w, http.StatusOK, otpEnvelope(out, "OTP sent to email"))
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req identityRefRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.ResendOTP(r.Context(), identityRef(r, req.UserID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, otpEnvelope(out, "OTP resent to email"))
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := cookieValue(r, refreshTokenCookie)
	if token == "" {
		token = req.RefreshToken
	}
	access, err := h.svc.RefreshToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.cookies.setAccessToken(w, access)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Token refreshed"})
}

// Logout succeeds even without a usable access token; the cookies are
// cleared either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Logout(r.Context(), cookieValue(r, userIDCookie), middleware.AccessToken(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	h.cookies.clearAuth(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, IdentityEnvelope{User: ident})
}

func otpEnvelope(out *session.Outcome, sent string) OTPEnvelope {
	msg := sent
	if !out.OTPDelivered {
		msg = "OTP could not be delivered, request a resend"
	}
	return OTPEnvelope{Message: msg, UserID: out.IdentityID, OTPDelivered: out.OTPDelivered}
}

// identityRef prefers the correlation cookie over the body.
func identityRef(r *http.Request, fromBody string) string {
	if v := cookieValue(r, userIDCookie); v != "" {
		return v
	}
	return fromBody
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
