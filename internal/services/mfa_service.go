package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
	"github.com/BradenHooton/rampart/internal/repositories"
)

// Enroller creates new TOTP credentials
type Enroller interface {
	Enroll(accountName string) (*auth.Enrollment, error)
}

// SecondFactorConfig holds second-factor configuration
type SecondFactorConfig struct {
	// EnforcedRoles must enroll before they can log in
	EnforcedRoles   []string
	BackupCodeCount int
}

// SecondFactorService verifies TOTP and backup codes and manages enrollment
type SecondFactorService struct {
	repo     repositories.PrincipalRepository
	verifier *auth.Verifier
	hasher   *auth.BackupCodeHasher
	enroller Enroller
	sink     policy.EventSink
	logger   *slog.Logger
	config   SecondFactorConfig
}

// NewSecondFactorService creates a new SecondFactorService
func NewSecondFactorService(
	repo repositories.PrincipalRepository,
	verifier *auth.Verifier,
	hasher *auth.BackupCodeHasher,
	enroller Enroller,
	sink policy.EventSink,
	logger *slog.Logger,
	config SecondFactorConfig,
) *SecondFactorService {
	if sink == nil {
		sink = policy.NopSink{}
	}
	if config.BackupCodeCount <= 0 {
		config.BackupCodeCount = 10
	}
	return &SecondFactorService{
		repo:     repo,
		verifier: verifier,
		hasher:   hasher,
		enroller: enroller,
		sink:     sink,
		logger:   logger,
		config:   config,
	}
}

// Required reports whether p must pass a second factor to log in
func (s *SecondFactorService) Required(p *models.Principal) bool {
	return p.HasSecondFactor() || p.HasAnyRole(s.config.EnforcedRoles)
}

// VerifySecondFactor checks code for the principal. A principal without a
// secret passes unless one of its roles is enforced. Otherwise exactly one of
// a fresh TOTP code or an unconsumed backup code must match; a matching
// backup code is consumed.
func (s *SecondFactorService) VerifySecondFactor(ctx context.Context, principalID, code string) (ok, usedBackupCode bool, err error) {
	p, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, false, models.ErrNotFound
		}
		return false, false, fmt.Errorf("failed to load principal: %w", err)
	}

	fields := map[string]any{"user_id": p.ID}

	if !p.HasSecondFactor() {
		if p.HasAnyRole(s.config.EnforcedRoles) {
			s.sink.EmitEvent(ctx, models.Event2FARequired, fields)
			return false, false, models.ErrMFARequired
		}
		return true, false, nil
	}

	step, totpErr := s.verifier.MatchStep(p.TOTPSecret, code)
	if totpErr == nil {
		advanced, err := s.repo.AdvanceTOTPStep(ctx, p.ID, step)
		if err != nil {
			return false, false, fmt.Errorf("failed to record totp step: %w", err)
		}
		if !advanced {
			s.sink.EmitEvent(ctx, models.Event2FAReplay, fields)
			return false, false, models.ErrMFAReplay
		}
		s.sink.EmitEvent(ctx, models.Event2FAOK, with(fields, "method", "totp"))
		return true, false, nil
	}
	if errors.Is(totpErr, auth.ErrInvalidSecret) {
		s.logger.ErrorContext(ctx, "stored totp secret is unusable", slog.String("user_id", p.ID))
		return false, false, models.ErrInternalServer
	}

	if hash, found := s.hasher.Match(code, p.BackupCodeHashes); found {
		consumed, err := s.repo.ConsumeBackupCode(ctx, p.ID, hash)
		if err != nil {
			return false, false, fmt.Errorf("failed to consume backup code: %w", err)
		}
		if consumed {
			s.sink.EmitEvent(ctx, models.Event2FABackupUsed, with(fields, "remaining", len(p.BackupCodeHashes)-1))
			return true, true, nil
		}
	}

	if errors.Is(totpErr, models.ErrMFAInvalidFormat) && !auth.WellFormedBackupCode(code) {
		s.sink.EmitEvent(ctx, models.Event2FAInvalidFormat, fields)
		return false, false, models.ErrMFAInvalidFormat
	}

	s.sink.EmitEvent(ctx, models.Event2FAFailed, fields)
	return false, false, models.ErrMFAInvalidCode
}

// EnrollmentResponse is returned once when a principal enrolls
type EnrollmentResponse struct {
	Secret      string   `json:"secret"`
	URL         string   `json:"otpauth_url"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

// Enroll generates a new secret and backup code set for the principal,
// replacing any existing credential
func (s *SecondFactorService) Enroll(ctx context.Context, principalID string) (*EnrollmentResponse, error) {
	p, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.enroller.Enroll(p.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate totp secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := auth.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.SetSecondFactor(ctx, p.ID, enrollment.Secret, s.hasher.HashAll(codes)); err != nil {
		return nil, fmt.Errorf("failed to store second factor: %w", err)
	}

	s.sink.EmitEvent(ctx, models.Event2FAEnrolled, map[string]any{"user_id": p.ID})

	return &EnrollmentResponse{
		Secret:      enrollment.Secret,
		URL:         enrollment.URL,
		QRCode:      enrollment.QRCodeDataURL,
		BackupCodes: codes,
	}, nil
}

// RegenerateBackupCodes replaces the principal's backup codes. The plaintext
// codes are only available in the return value.
func (s *SecondFactorService) RegenerateBackupCodes(ctx context.Context, principalID string) ([]string, error) {
	p, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !p.HasSecondFactor() {
		return nil, models.ErrMFANotEnrolled
	}

	codes, err := auth.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.ReplaceBackupCodes(ctx, p.ID, s.hasher.HashAll(codes)); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}

	s.sink.EmitEvent(ctx, models.Event2FABackupReset, map[string]any{"user_id": p.ID, "count": len(codes)})
	return codes, nil
}

// with returns a copy of base with one extra field
func with(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
