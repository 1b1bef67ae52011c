package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/repositories"
	pkgauth "github.com/BradenHooton/rampart/pkg/auth"
)

// AuthService handles the password and second-factor steps of a login
type AuthService struct {
	repo   repositories.PrincipalRepository
	tm     *auth.TokenManager
	mfa    *SecondFactorService
	logger *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(repo repositories.PrincipalRepository, tm *auth.TokenManager, mfa *SecondFactorService, logger *slog.Logger) *AuthService {
	return &AuthService{
		repo:   repo,
		tm:     tm,
		mfa:    mfa,
		logger: logger,
	}
}

// LoginResponse carries either an access token or, when a second factor is
// still needed, a challenge token
type LoginResponse struct {
	AccessToken       string `json:"access_token,omitempty"`
	ChallengeToken    string `json:"challenge_token,omitempty"`
	TwoFactorRequired bool   `json:"two_factor_required"`
}

// Login checks the password. Unknown accounts and wrong passwords both fail
// with ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		return nil, models.ErrUnauthorized
	}

	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.InfoContext(ctx, "login failed: invalid credentials")
			return nil, models.ErrUnauthorized
		}
		s.logger.ErrorContext(ctx, "failed to get principal by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(p.PasswordHash, password); err != nil {
		s.logger.InfoContext(ctx, "login failed: invalid credentials")
		return nil, models.ErrUnauthorized
	}

	if s.mfa.Required(p) {
		token, err := s.tm.GenerateChallengeToken(p.ID, p.Email)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to generate challenge token", slog.String("user_id", p.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return &LoginResponse{ChallengeToken: token, TwoFactorRequired: true}, nil
	}

	return s.issue(ctx, p)
}

// CompleteSecondFactor exchanges a challenge token and a code for an access token
func (s *AuthService) CompleteSecondFactor(ctx context.Context, challengeToken, code string) (*LoginResponse, bool, error) {
	claims, err := s.tm.ValidateToken(strings.TrimSpace(challengeToken), models.TokenTypeChallenge)
	if err != nil {
		s.logger.InfoContext(ctx, "challenge token rejected", slog.Any("error", err))
		return nil, false, models.ErrUnauthorized
	}

	ok, usedBackup, err := s.mfa.VerifySecondFactor(ctx, claims.UserID, code)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, models.ErrMFAInvalidCode
	}

	p, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to reload principal", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	resp, err := s.issue(ctx, p)
	return resp, usedBackup, err
}

func (s *AuthService) issue(ctx context.Context, p *models.Principal) (*LoginResponse, error) {
	token, err := s.tm.GenerateAccessToken(p.ID, p.Email, p.Roles)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate access token", slog.String("user_id", p.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	s.logger.InfoContext(ctx, "principal logged in", slog.String("user_id", p.ID))
	return &LoginResponse{AccessToken: token}, nil
}
