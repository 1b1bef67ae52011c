package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/rampart/internal/models"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// ActivityReader lists recent audit events
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

// ActivityHandler exposes the activity log to administrators
type ActivityHandler struct {
	reader ActivityReader
	logger *slog.Logger
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(reader ActivityReader, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{reader: reader, logger: logger}
}

// List returns the newest events
// @Router /admin/activity [get]
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list activity", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"events": events})
}
