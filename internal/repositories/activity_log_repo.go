package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/rampart/internal/database"
	"github.com/BradenHooton/rampart/internal/models"
)

// ActivityLogRetention is the number of events kept by Trim
const ActivityLogRetention = 1000

// ActivityLogRepository handles activity log data access
type ActivityLogRepository struct {
	pool *pgxpool.Pool
}

// NewActivityLogRepository creates a new ActivityLogRepository
func NewActivityLogRepository(db *database.DB) *ActivityLogRepository {
	return &ActivityLogRepository{pool: db.Pool}
}

// Create inserts an event, assigning its ID and timestamp when unset
func (r *ActivityLogRepository) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO activity_log (id, event_type, fields, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, e.ID, e.Type, e.Fields, time.Unix(e.CreatedAt, 0))
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", database.MapPostgresError(err))
	}
	return nil
}

// Recent returns the newest events first
func (r *ActivityLogRepository) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	query := `
		SELECT id, event_type, fields, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Event, error) {
		var e models.Event
		var created time.Time
		if err := row.Scan(&e.ID, &e.Type, &e.Fields, &created); err != nil {
			return e, err
		}
		e.CreatedAt = created.Unix()
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity log: %w", err)
	}
	return events, nil
}

// Trim deletes everything but the newest keep events
func (r *ActivityLogRepository) Trim(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM activity_log
		WHERE id NOT IN (
			SELECT id FROM activity_log ORDER BY created_at DESC LIMIT $1
		)
	`
	result, err := r.pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim activity log: %w", err)
	}
	return result.RowsAffected(), nil
}
