package models

// Audit event types emitted through the event sink
const (
	EventBlockedRequest = "blocked_request"
	EventAttempt        = "attempt"
	EventLockout        = "lockout"
	EventRateLimited    = "rate_limit"
	EventWAFBlock       = "waf_block"
	EventNotFoundHit    = "404_hit"
	EventAntispamBlock  = "antispam_block"
	EventAntispamPass   = "antispam_pass"
	EventStoreError     = "store_error"
	EventRuleError      = "rule_error"
	EventLoginSuccess   = "login_success"

	Event2FAOK            = "2fa_ok"
	Event2FAFailed        = "2fa_failed"
	Event2FAInvalidFormat = "2fa_invalid_format"
	Event2FABackupUsed    = "2fa_backup_used"
	Event2FARequired      = "2fa_required"
	Event2FAReplay        = "2fa_replay"
	Event2FAEnrolled      = "2fa_enrolled"
	Event2FABackupReset   = "2fa_backup_regenerated"
)

// Event is a persisted audit event
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Fields    map[string]any `json:"fields"`
	CreatedAt int64          `json:"created_at"`
}

// IsAlert reports whether the event type signals a denial worth escalating
func IsAlert(eventType string) bool {
	return eventType == EventLockout
}
