package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/database/dbtest"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/repositories"
)

type activityLog interface {
	Create(ctx context.Context, e *models.Event) error
	Recent(ctx context.Context, limit int) ([]models.Event, error)
	Trim(ctx context.Context, keep int) (int64, error)
}

func runActivitySuite(t *testing.T, repo activityLog) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := &models.Event{
			Type:      models.EventLockout,
			Fields:    map[string]any{"ip": fmt.Sprintf("203.0.113.%d", i), "policy": "bruteforce"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute).Unix(),
		}
		require.NoError(t, repo.Create(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	events, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "203.0.113.4", events[0].Fields["ip"])
	assert.Equal(t, "203.0.113.3", events[1].Fields["ip"])

	removed, err := repo.Trim(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	events, err = repo.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, "203.0.113.2", events[2].Fields["ip"])

	removed, err = repo.Trim(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMemoryActivityLogRepository(t *testing.T) {
	runActivitySuite(t, repositories.NewMemoryActivityLogRepository())
}

func TestActivityLogRepository_Postgres(t *testing.T) {
	db := dbtest.Setup(t)
	require.NoError(t, db.Truncate(context.Background(), "activity_log"))
	runActivitySuite(t, repositories.NewActivityLogRepository(db.DB))
}
