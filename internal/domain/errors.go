package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")
)

// Fine-grained failure kinds. They are attached next to one of the coarse
// classes above and are meant for internal branching and logs only.
var (
	ErrValidation      = errors.New("validation failed")
	ErrAuthentication  = errors.New("invalid email or password")
	ErrMissingIdentity = errors.New("identity reference missing")
	ErrMissingCode     = errors.New("verification code missing")
	ErrDelivery        = errors.New("notification delivery failed")

	ErrOTPNotFound        = errors.New("otp not found")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPMismatch        = errors.New("otp mismatch")
	ErrOTPTooManyAttempts = errors.New("otp attempts exceeded")

	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenWrongType    = errors.New("token type mismatch")
	ErrTokenRevoked      = errors.New("token revoked")
)
