package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/config"
	"github.com/BradenHooton/rampart/internal/database"
	"github.com/BradenHooton/rampart/internal/database/dbtest"
	"github.com/BradenHooton/rampart/internal/models"
)

func TestPoolConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:              "db.internal",
		Port:              5433,
		User:              "rampart",
		Password:          "pw",
		Name:              "rampart",
		SSLMode:           "disable",
		MaxConns:          8,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}

	pc, err := database.PoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)
	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, database.ApplicationName, pc.ConnConfig.RuntimeParams["application_name"])
}

func TestMapPostgresError(t *testing.T) {
	assert.NoError(t, database.MapPostgresError(nil))
	assert.ErrorIs(t, database.MapPostgresError(pgx.ErrNoRows), models.ErrNotFound)
	assert.ErrorIs(t, database.MapPostgresError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)

	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, database.MapPostgresError(wrapped), models.ErrConflict)
	assert.ErrorIs(t, database.MapPostgresError(&pgconn.PgError{Code: "23514"}), models.ErrBadRequest)

	other := errors.New("connection reset")
	assert.Equal(t, other, database.MapPostgresError(other))
}

func TestDB_Ping(t *testing.T) {
	db := dbtest.Setup(t)

	require.NoError(t, db.DB.Ping(context.Background()))
}
