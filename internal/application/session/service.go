package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-otp/internal/application/otp"
	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/metrics"
	"github.com/go-auth-otp/internal/pkg/validate"
)

const defaultCallTimeout = 5 * time.Second

// State is where an identity sits in the authentication flow.
type State string

const (
	StateUnregistered State = "unregistered"
	StatePending      State = "pending"
	StateVerified     State = "verified"
	StateLoggedOut    State = "logged_out"
)

// Outcome is what a flow step hands back to the transport. Tokens is only set
// once an OTP has been confirmed.
type Outcome struct {
	IdentityID   string            `json:"userId"`
	State        State             `json:"state"`
	Tokens       *domain.TokenPair `json:"tokens,omitempty"`
	OTPDelivered bool              `json:"otpDelivered"`
}

// Service drives the register/verify/login/refresh/logout state machine.
// Returned errors always wrap one of domain.ErrBadRequest,
// domain.ErrUnauthorized or domain.ErrInternal next to the specific cause.
type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*Outcome, error)
	VerifyEmail(ctx context.Context, identityRef, code string) (*Outcome, error)
	Login(ctx context.Context, req domain.LoginRequest) (*Outcome, error)
	ResendOTP(ctx context.Context, identityRef string) (*Outcome, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, identityRef, accessToken string) (*Outcome, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.Identity, error)
}

type credentialStore interface {
	CreateIdentity(ctx context.Context, req domain.RegisterRequest) (*domain.Identity, error)
	GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)
	MarkVerified(ctx context.Context, identityID string) error
	CheckPassword(ctx context.Context, identityID, password string) (bool, error)
}

type otpManager interface {
	Issue(ctx context.Context, identityID string) (*otp.Issued, error)
	Consume(ctx context.Context, identityID, code string, onMatch func(context.Context) error) error
}

type tokenIssuer interface {
	IssuePair(identityID string) (*domain.TokenPair, error)
	Validate(ctx context.Context, token string, expected domain.TokenType) (*domain.Claims, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Revoke(ctx context.Context, identityID, accessToken string) error
}

type notifier interface {
	SendOTP(ctx context.Context, ident *domain.Identity, code string) error
}

type service struct {
	credentials credentialStore
	otp         otpManager
	tokens      tokenIssuer
	notifier    notifier
	metrics     *metrics.Recorder
	timeout     time.Duration
}

type ServiceDeps struct {
	Credentials credentialStore
	OTP         otpManager
	Tokens      tokenIssuer
	Notifier    notifier
	// Metrics may be nil.
	Metrics *metrics.Recorder
	// CallTimeout bounds every collaborator call. Defaults to 5s.
	CallTimeout time.Duration
}

func NewService(deps ServiceDeps) Service {
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &service{
		credentials: deps.Credentials,
		otp:         deps.OTP,
		tokens:      deps.Tokens,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		timeout:     timeout,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (out *Outcome, err error) {
	defer s.observe("register", time.Now(), &err)

	var ident *domain.Identity
	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		ident, cerr = s.credentials.CreateIdentity(ctx, req)
		return cerr
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return nil, badRequest("register", err)
		}
		return nil, internal("create identity", err)
	}

	delivered, err := s.sendOTP(ctx, ident)
	if err != nil {
		return nil, err
	}
	return &Outcome{IdentityID: ident.IdentityID, State: StatePending, OTPDelivered: delivered}, nil
}

func (s *service) VerifyEmail(ctx context.Context, identityRef, code string) (out *Outcome, err error) {
	defer s.observe("verify_email", time.Now(), &err)

	identityRef = strings.TrimSpace(identityRef)
	if identityRef == "" {
		return nil, badRequest("verify email", domain.ErrMissingIdentity)
	}
	if strings.TrimSpace(code) == "" {
		return nil, badRequest("verify email", domain.ErrMissingCode)
	}

	// The code is only spent once the identity is verified and tokens exist,
	// so a failure here leaves it usable for a retry.
	var pair *domain.TokenPair
	commit := func(ctx context.Context) error {
		if err := s.call(ctx, func(ctx context.Context) error {
			return s.credentials.MarkVerified(ctx, identityRef)
		}); err != nil {
			return internal("mark verified", err)
		}
		p, err := s.tokens.IssuePair(identityRef)
		if err != nil {
			return internal("issue tokens", err)
		}
		pair = p
		return nil
	}
	err = s.call(ctx, func(ctx context.Context) error {
		return s.otp.Consume(ctx, identityRef, code, commit)
	})
	if err != nil {
		if isOTPFailure(err) {
			return nil, unauthorized("verify email", err)
		}
		return nil, internal("verify otp", err)
	}
	return &Outcome{IdentityID: identityRef, State: StateVerified, Tokens: pair}, nil
}

// Login checks the password and sends a fresh OTP. Tokens are only granted by
// a subsequent VerifyEmail.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (out *Outcome, err error) {
	defer s.observe("login", time.Now(), &err)

	if err = validate.Struct(req); err != nil {
		return nil, badRequest("login", err)
	}

	var ident *domain.Identity
	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		ident, cerr = s.credentials.GetIdentityByEmail(ctx, req.Email)
		return cerr
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, unauthorized("login", domain.ErrAuthentication)
	}
	if err != nil {
		return nil, internal("load identity", err)
	}

	var ok bool
	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		ok, cerr = s.credentials.CheckPassword(ctx, ident.IdentityID, req.Password)
		return cerr
	})
	if err != nil {
		return nil, internal("check password", err)
	}
	if !ok {
		return nil, unauthorized("login", domain.ErrAuthentication)
	}

	delivered, err := s.sendOTP(ctx, ident)
	if err != nil {
		return nil, err
	}
	return &Outcome{IdentityID: ident.IdentityID, State: StatePending, OTPDelivered: delivered}, nil
}

func (s *service) ResendOTP(ctx context.Context, identityRef string) (out *Outcome, err error) {
	defer s.observe("resend_otp", time.Now(), &err)

	identityRef = strings.TrimSpace(identityRef)
	if identityRef == "" {
		return nil, badRequest("resend otp", domain.ErrMissingIdentity)
	}

	var ident *domain.Identity
	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		ident, cerr = s.credentials.GetIdentity(ctx, identityRef)
		return cerr
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, badRequest("resend otp", err)
	}
	if err != nil {
		return nil, internal("load identity", err)
	}

	delivered, err := s.sendOTP(ctx, ident)
	if err != nil {
		return nil, err
	}
	return &Outcome{IdentityID: ident.IdentityID, State: StatePending, OTPDelivered: delivered}, nil
}

// RefreshToken mints a new access token. Every validation failure surfaces
// as the same unauthorized class.
func (s *service) RefreshToken(ctx context.Context, refreshToken string) (access string, err error) {
	defer s.observe("refresh_token", time.Now(), &err)

	if strings.TrimSpace(refreshToken) == "" {
		return "", unauthorized("refresh token", domain.ErrTokenMalformed)
	}
	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		access, cerr = s.tokens.Refresh(ctx, refreshToken)
		return cerr
	})
	if err != nil {
		if isTokenFailure(err) {
			return "", unauthorized("refresh token", err)
		}
		return "", internal("refresh token", err)
	}
	return access, nil
}

// Logout revokes the presented access token. Invalid or already revoked
// tokens still log out.
func (s *service) Logout(ctx context.Context, identityRef, accessToken string) (out *Outcome, err error) {
	defer s.observe("logout", time.Now(), &err)

	identityRef = strings.TrimSpace(identityRef)
	err = s.call(ctx, func(ctx context.Context) error {
		return s.tokens.Revoke(ctx, identityRef, accessToken)
	})
	if err != nil {
		return nil, internal("revoke", err)
	}
	return &Outcome{IdentityID: identityRef, State: StateLoggedOut}, nil
}

// Authenticate resolves an access token to a verified identity.
func (s *service) Authenticate(ctx context.Context, accessToken string) (ident *domain.Identity, err error) {
	var claims *domain.Claims
	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		claims, cerr = s.tokens.Validate(ctx, accessToken, domain.TokenAccess)
		return cerr
	})
	if err != nil {
		if isTokenFailure(err) {
			return nil, unauthorized("authenticate", err)
		}
		return nil, internal("authenticate", err)
	}

	err = s.call(ctx, func(ctx context.Context) (cerr error) {
		ident, cerr = s.credentials.GetIdentity(ctx, claims.IdentityID)
		return cerr
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, unauthorized("authenticate", err)
	}
	if err != nil {
		return nil, internal("load identity", err)
	}
	if !ident.Verified {
		return nil, unauthorized("authenticate", errors.New("identity not verified"))
	}
	return ident, nil
}

// sendOTP replaces the identity's pending code and notifies it. A delivery
// failure keeps the stored code so the caller can ask for a resend.
func (s *service) sendOTP(ctx context.Context, ident *domain.Identity) (bool, error) {
	var issued *otp.Issued
	err := s.call(ctx, func(ctx context.Context) (cerr error) {
		issued, cerr = s.otp.Issue(ctx, ident.IdentityID)
		return cerr
	})
	if err != nil {
		return false, internal("issue otp", err)
	}

	err = s.call(ctx, func(ctx context.Context) error {
		return s.notifier.SendOTP(ctx, ident, issued.Code)
	})
	if err != nil {
		slog.Warn("otp delivery failed", "identity_id", ident.IdentityID, "err", err)
		return false, nil
	}
	return true, nil
}

func (s *service) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *service) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, *err, time.Since(start))
	if errors.Is(*err, domain.ErrInternal) {
		slog.Error("auth operation failed", "operation", op, "err", *err)
	}
}

func isOTPFailure(err error) bool {
	return errors.Is(err, domain.ErrOTPNotFound) ||
		errors.Is(err, domain.ErrOTPExpired) ||
		errors.Is(err, domain.ErrOTPMismatch) ||
		errors.Is(err, domain.ErrOTPTooManyAttempts)
}

func isTokenFailure(err error) bool {
	if errors.Is(err, domain.ErrInternal) {
		return false
	}
	return errors.Is(err, domain.ErrTokenMalformed) ||
		errors.Is(err, domain.ErrTokenBadSignature) ||
		errors.Is(err, domain.ErrTokenExpired) ||
		errors.Is(err, domain.ErrTokenWrongType) ||
		errors.Is(err, domain.ErrTokenRevoked)
}

func badRequest(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrBadRequest)
}

func unauthorized(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrUnauthorized)
}

func internal(op string, err error) error {
	if errors.Is(err, domain.ErrInternal) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrInternal)
}
