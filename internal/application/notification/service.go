package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"golang.org/x/time/rate"
)

const otpSubject = "Your verification code"

// Service delivers one-time codes to an identity.
type Service interface {
	SendOTP(ctx context.Context, ident *domain.Identity, code string) error
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type service struct {
	mailer  mailer
	sms     smsSender
	limiter *rate.Limiter
	codeTTL time.Duration
}

type ServiceDeps struct {
	Mailer mailer
	// SMS is optional. When set, identities with a phone number also get the
	// code by text message.
	SMS     smsSender
	Limiter *rate.Limiter
	CodeTTL time.Duration
}

func NewService(deps ServiceDeps) Service {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &service{
		mailer:  deps.Mailer,
		sms:     deps.SMS,
		limiter: limiter,
		codeTTL: deps.CodeTTL,
	}
}

// SendOTP emails the code and, when possible, texts it. Email is the required
// channel; an SMS failure after a successful email is only logged.
func (s *service) SendOTP(ctx context.Context, ident *domain.Identity, code string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify throttle: %v: %w", err, domain.ErrDelivery)
	}
	if err := s.mailer.SendEmail(ctx, ident.Email, otpSubject, s.body(code)); err != nil {
		return fmt.Errorf("send otp email: %v: %w", err, domain.ErrDelivery)
	}
	if s.sms != nil && ident.Phone != nil && *ident.Phone != "" {
		if err := s.sms.SendSMS(ctx, *ident.Phone, s.body(code)); err != nil {
			slog.Warn("otp sms delivery failed", "identity_id", ident.IdentityID, "err", err)
		}
	}
	return nil
}

func (s *service) body(code string) string {
	if s.codeTTL <= 0 {
		return fmt.Sprintf("Your verification code is %s.", code)
	}
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.codeTTL.Minutes()))
}
