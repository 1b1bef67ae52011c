package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/rampart/internal/auth"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/services"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// SecondFactorServiceInterface defines enrollment operations
type SecondFactorServiceInterface interface {
	Enroll(ctx context.Context, principalID string) (*services.EnrollmentResponse, error)
	RegenerateBackupCodes(ctx context.Context, principalID string) ([]string, error)
}

// MFAHandler handles second-factor enrollment for the authenticated principal
type MFAHandler struct {
	service SecondFactorServiceInterface
	logger  *slog.Logger
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service SecondFactorServiceInterface, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{service: service, logger: logger}
}

// BackupCodesResponse carries freshly generated backup codes. They are shown once.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// Enroll generates a TOTP secret, QR code and backup codes
// @Router /mfa/enroll [post]
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	resp, err := h.service.Enroll(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// RegenerateBackupCodes replaces the principal's backup codes
// @Router /mfa/backup-codes [post]
func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(BackupCodesResponse{BackupCodes: codes})
}

func (h *MFAHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Principal not found")
	case errors.Is(err, models.ErrMFANotEnrolled):
		pkghttp.WriteBadRequest(w, "Second factor is not enrolled")
	default:
		h.logger.ErrorContext(r.Context(), "second factor enrollment failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
