package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/middleware"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
	"github.com/BradenHooton/rampart/internal/services"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*services.LoginResponse, error)
	CompleteSecondFactor(ctx context.Context, challengeToken, code string) (*services.LoginResponse, bool, error)
}

// PolicyEngine evaluates request-defense policies
type PolicyEngine interface {
	Evaluate(ctx context.Context, name string, rc models.RequestContext) models.Decision
}

// AuthHandler handles the login and second-factor endpoints. Every attempt
// passes through the brute-force policy.
type AuthHandler struct {
	service AuthServiceInterface
	engine  PolicyEngine
	delay   *auth.TimingDelay
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, engine PolicyEngine, delay *auth.TimingDelay, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		engine:  engine,
		delay:   delay,
		logger:  logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

// VerifySecondFactorRequest represents the request body for the second step
type VerifySecondFactorRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,max=20"`
}

// VerifySecondFactorResponse is returned after a successful second step
type VerifySecondFactorResponse struct {
	AccessToken    string `json:"access_token"`
	UsedBackupCode bool   `json:"used_backup_code"`
}

// attempt evaluates the brute-force policy for one login outcome. It writes
// the denial and returns false when the request must stop.
func (h *AuthHandler) attempt(w http.ResponseWriter, r *http.Request, username string, outcome models.Outcome) bool {
	rc := middleware.RequestContext(r)
	rc.Username = username
	rc.Outcome = outcome

	d := h.engine.Evaluate(r.Context(), policy.NameBruteForce, rc)
	if !d.Allowed() {
		pkghttp.WriteDecision(w, d)
		return false
	}
	return true
}

// fail records a failed attempt, slows the response and writes the failure
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, username, message string) {
	ok := h.attempt(w, r, username, models.OutcomeFailure)
	if h.delay != nil {
		h.delay.Wait(r.Context(), false)
	}
	if ok {
		pkghttp.WriteUnauthorized(w, message)
	}
}

// Login handles the password step
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// locked subjects are rejected before the password is checked
	if !h.attempt(w, r, req.Email, models.OutcomeNone) {
		return
	}

	resp, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			h.fail(w, r, req.Email, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if !resp.TwoFactorRequired {
		h.attempt(w, r, req.Email, models.OutcomeSuccess)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// VerifySecondFactor handles the second step. Wrong codes count as failed
// logins for the client address.
// @Router /auth/2fa/verify [post]
func (h *AuthHandler) VerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifySecondFactorRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !h.attempt(w, r, "", models.OutcomeNone) {
		return
	}

	resp, usedBackup, err := h.service.CompleteSecondFactor(r.Context(), req.ChallengeToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFAInvalidCode),
			errors.Is(err, models.ErrMFAInvalidFormat),
			errors.Is(err, models.ErrMFAReplay):
			// format errors and wrong codes look the same to the caller
			h.fail(w, r, "", "Invalid code")
		case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrMFARequired):
			pkghttp.WriteUnauthorized(w, "Second factor enrollment required")
		default:
			h.logger.ErrorContext(r.Context(), "second factor verification failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	h.attempt(w, r, "", models.OutcomeSuccess)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(VerifySecondFactorResponse{
		AccessToken:    resp.AccessToken,
		UsedBackupCode: usedBackup,
	})
}
