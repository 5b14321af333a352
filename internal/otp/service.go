// Package otp implements phone login: rate-limited SMS verification and
// session token issuance.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/quota"
)

// Limiter gates sends per phone.
type Limiter interface {
	Allow(ctx context.Context, subject string) (quota.Snapshot, error)
	Record(ctx context.Context, subject string, amount float64) (quota.Snapshot, error)
}

// Service sends and verifies one-time codes.
type Service struct {
	verifier Verifier
	limiter  Limiter
	tokens   *TokenIssuer
}

// NewService creates a Service. limiter may be nil to disable rate limiting.
func NewService(verifier Verifier, limiter Limiter, tokens *TokenIssuer) *Service {
	return &Service{verifier: verifier, limiter: limiter, tokens: tokens}
}

// Send starts a verification for phone after consuming one send from the
// hourly allowance. Limiter storage failures are logged and do not block the send.
func (s *Service) Send(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", domain.NewValidationError("phone", "is required")
	}

	if s.limiter != nil {
		if err := s.consume(ctx, phone); err != nil {
			return "", err
		}
	}

	status, err := s.verifier.StartVerification(ctx, phone)
	if err != nil {
		return "", err
	}
	slog.Info("OTP sent", "phone", phone, "status", status)
	return status, nil
}

func (s *Service) consume(ctx context.Context, phone string) error {
	_, err := s.limiter.Allow(ctx, phone)
	if errors.Is(err, domain.ErrQuotaExceeded) {
		slog.Warn("OTP rate limit reached", "phone", phone)
		return err
	}
	if err != nil {
		slog.Warn("OTP rate limiter unavailable, continuing", "error", err, "phone", phone)
		return nil
	}
	if _, err := s.limiter.Record(ctx, phone, 1); err != nil {
		slog.Warn("Failed to record OTP send", "error", err, "phone", phone)
	}
	return nil
}

// Verify checks code and returns a session token when it is approved.
func (s *Service) Verify(ctx context.Context, phone, code string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", domain.NewValidationError("phone", "is required")
	}
	if strings.TrimSpace(code) == "" {
		return "", domain.NewValidationError("otp", "is required")
	}

	status, err := s.verifier.CheckVerification(ctx, phone, code)
	if err != nil {
		return "", err
	}
	if status != StatusApproved {
		return "", fmt.Errorf("%w: Invalid or expired code", domain.ErrUnauthorized)
	}
	return s.tokens.Issue(phone)
}
