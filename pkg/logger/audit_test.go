package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/pkg/logger"
)

func capture(env string) (*logger.AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return logger.NewAuditLogger(slog.New(h), env), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestEmitEvent_Lockout(t *testing.T) {
	al, buf := capture("development")

	al.EmitEvent(context.Background(), models.EventLockout, map[string]any{
		"ip":     "203.0.113.5",
		"policy": "bf",
		"count":  6,
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "audit", rec["msg"])
	assert.Equal(t, "defense", rec["audit_type"])
	assert.Equal(t, "lockout", rec["event_type"])
	assert.Equal(t, "203.0.113.5", rec["ip"])
	assert.Equal(t, "bf", rec["policy"])
	assert.EqualValues(t, 6, rec["count"])
}

func TestEmitEvent_StoreErrorIsError(t *testing.T) {
	al, buf := capture("development")

	al.EmitEvent(context.Background(), models.EventStoreError, map[string]any{
		"error": errors.New("dial tcp: refused"),
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "dial tcp: refused", rec["error"])
}

func TestEmitEvent_SecondFactorIsAuth(t *testing.T) {
	al, buf := capture("development")

	al.EmitEvent(context.Background(), models.Event2FAOK, map[string]any{"user_id": "u1"})

	rec := lastRecord(t, buf)
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "auth", rec["audit_type"])
}

func TestEmitEvent_RedactsInProduction(t *testing.T) {
	al, buf := capture("production")

	al.EmitEvent(context.Background(), models.EventAttempt, map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"query":    "password=hunter2",
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "[REDACTED]", rec["username"])
	assert.Equal(t, "a****@*******.com", rec["email"])
	assert.Equal(t, "[REDACTED]", rec["query"])
}

func TestEmitEvent_KeepsUsernameOutsideProduction(t *testing.T) {
	al, buf := capture("development")

	al.EmitEvent(context.Background(), models.EventAttempt, map[string]any{
		"username": "alice",
		"query":    "page=2",
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "alice", rec["username"])
	assert.Equal(t, "page=2", rec["query"])
}

func TestEmitEvent_AuthSecretsRedactedInEveryEnv(t *testing.T) {
	al, buf := capture("development")

	al.EmitEvent(context.Background(), models.Event2FAFailed, map[string]any{
		"user_id":         "u1",
		"code":            "123456",
		"challenge_token": "eyJhbGciOi",
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "u1", rec["user_id"])
	assert.Equal(t, "[REDACTED]", rec["code"])
	assert.Equal(t, "[REDACTED]", rec["challenge_token"])
	assert.NotContains(t, buf.String(), "123456")
}

func TestEmitEvent_DefenseRecordsKeepRuleFields(t *testing.T) {
	al, buf := capture("development")

	al.EmitEvent(context.Background(), models.EventWAFBlock, map[string]any{
		"code":     "sqli",
		"username": "alice",
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "defense", rec["audit_type"])
	assert.Equal(t, "sqli", rec["code"])
	assert.Equal(t, "alice", rec["username"])
}
