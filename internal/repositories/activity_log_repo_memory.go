package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/rampart/internal/models"
)

// MemoryActivityLogRepository keeps the activity log in process memory
type MemoryActivityLogRepository struct {
	mu     sync.Mutex
	events []models.Event
}

// NewMemoryActivityLogRepository creates an empty log
func NewMemoryActivityLogRepository() *MemoryActivityLogRepository {
	return &MemoryActivityLogRepository{}
}

func (r *MemoryActivityLogRepository) Create(_ context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

// Recent returns the newest events first
func (r *MemoryActivityLogRepository) Recent(_ context.Context, limit int) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Event, 0, min(limit, len(r.events)))
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

// Trim drops all but the newest keep events
func (r *MemoryActivityLogRepository) Trim(_ context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	excess := len(r.events) - max(0, keep)
	if excess <= 0 {
		return 0, nil
	}
	r.events = append([]models.Event(nil), r.events[excess:]...)
	return int64(excess), nil
}
