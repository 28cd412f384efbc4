package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-auth-otp/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OTPEnvelope wraps responses of steps that send a verification code.
type OTPEnvelope struct {
	Message      string `json:"message"`
	UserID       string `json:"userId"`
	OTPDelivered bool   `json:"otpDelivered"`
}

// IdentityEnvelope wraps the authenticated identity.
type IdentityEnvelope struct {
	User *domain.Identity `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeServiceError maps the coarse class of a session error to a status
// code. Messages are fixed so causes never leak to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInternal):
		writeError(w, http.StatusInternalServerError, "internal server error")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, unauthorizedMessage(err))
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, badRequestMessage(err))
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return "invalid email or password"
	case errors.Is(err, domain.ErrOTPNotFound),
		errors.Is(err, domain.ErrOTPExpired),
		errors.Is(err, domain.ErrOTPMismatch),
		errors.Is(err, domain.ErrOTPTooManyAttempts):
		return "invalid or expired code"
	default:
		return "invalid or expired token"
	}
}

func badRequestMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		return "user id not found"
	case errors.Is(err, domain.ErrMissingCode):
		return "OTP is missing"
	case errors.Is(err, domain.ErrConflict):
		return "email already registered"
	case errors.Is(err, domain.ErrNotFound):
		return "user not found"
	default:
		return "invalid request"
	}
}
