package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BradenHooton/rampart/internal/models"
)

// AuditLogger writes defense and second-factor events as structured audit records
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

// NewAuditLogger creates a new audit logger. env controls redaction of usernames.
func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		env:    env,
	}
}

// EmitEvent logs one event. Field keys are written in sorted order.
func (al *AuditLogger) EmitEvent(ctx context.Context, eventType string, fields map[string]any) {
	family := auditType(eventType)
	attrs := []slog.Attr{
		slog.String("audit_type", family),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		attrs = append(attrs, al.attr(family, k, fields[k]))
	}

	al.logger.LogAttrs(ctx, eventLevel(eventType), "audit", attrs...)
}

func (al *AuditLogger) attr(family, key string, value any) slog.Attr {
	switch key {
	case "email":
		return slog.String(key, SanitizedEmail(fmt.Sprint(value)))
	case "username":
		return RedactField(family, key, fmt.Sprint(value), al.env)
	case "query":
		q := fmt.Sprint(value)
		if SanitizeQueryString(q) {
			return slog.String(key, redacted)
		}
		return slog.String(key, q)
	case "error":
		if err, ok := value.(error); ok {
			return slog.String(key, err.Error())
		}
	}
	if s, ok := value.(string); ok {
		return RedactField(family, key, s, al.env)
	}
	return slog.Any(key, value)
}

func auditType(eventType string) string {
	switch eventType {
	case models.Event2FAOK, models.Event2FAFailed, models.Event2FAInvalidFormat,
		models.Event2FABackupUsed, models.Event2FARequired, models.Event2FAReplay,
		models.Event2FAEnrolled, models.Event2FABackupReset, models.EventLoginSuccess:
		return AuditTypeAuth
	}
	return AuditTypeDefense
}

func eventLevel(eventType string) slog.Level {
	switch eventType {
	case models.EventStoreError, models.EventRuleError:
		return slog.LevelError
	case models.EventLockout, models.EventBlockedRequest, models.EventRateLimited,
		models.EventWAFBlock, models.EventAntispamBlock, models.Event2FAFailed,
		models.Event2FAReplay, models.Event2FARequired, models.Event2FAInvalidFormat:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
