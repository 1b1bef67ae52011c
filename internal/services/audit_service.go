package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/rampart/internal/models"
)

// ActivityLogRepository persists audit events
type ActivityLogRepository interface {
	Create(ctx context.Context, e *models.Event) error
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

// ActivityService is an event sink that stores events in the activity log.
// Persistence failures are logged and never reach the caller.
type ActivityService struct {
	repo   ActivityLogRepository
	logger *slog.Logger
}

// NewActivityService creates a new ActivityService
func NewActivityService(repo ActivityLogRepository, logger *slog.Logger) *ActivityService {
	return &ActivityService{repo: repo, logger: logger}
}

// EmitEvent persists the event
func (s *ActivityService) EmitEvent(ctx context.Context, eventType string, fields map[string]any) {
	e := &models.Event{Type: eventType, Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		e.Fields[k] = v
	}

	// the request may already be finished
	if err := s.repo.Create(context.WithoutCancel(ctx), e); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist activity log",
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
	}
}

// Recent returns the newest events, capped at 100
func (s *ActivityService) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.Recent(ctx, limit)
}
