package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// Audit record families, written as the audit_type field
const (
	AuditTypeAuth    = "auth"
	AuditTypeDefense = "defense"
)

// sensitiveParams are query keys whose presence redacts the whole query
var sensitiveParams = map[string]bool{
	"password":        true,
	"token":           true,
	"secret":          true,
	"code":            true,
	"backup_code":     true,
	"challenge_token": true,
	"otp":             true,
	"email":           true,
	"api_key":         true,
	"auth":            true,
}

// authSecretFields never reach an auth audit record in clear text
var authSecretFields = map[string]bool{
	"code":            true,
	"backup_code":     true,
	"secret":          true,
	"challenge_token": true,
	"password":        true,
	"otpauth_url":     true,
}

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// keep the TLD only
	labels := strings.Split(domain, ".")
	if len(labels) > 1 {
		for i := 0; i < len(labels)-1; i++ {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
		domain = strings.Join(labels, ".")
	}

	return username + "@" + domain
}

// RedactField renders one audit field. Second-factor material on auth
// records is always redacted; usernames are redacted in production.
func RedactField(auditType, key, value, env string) slog.Attr {
	switch {
	case auditType == AuditTypeAuth && authSecretFields[key]:
		return slog.String(key, redacted)
	case key == "username" && env == "production":
		return slog.String(key, redacted)
	}
	return slog.String(key, value)
}

// SanitizeQueryString reports whether rawQuery carries a sensitive parameter
// and should be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		lower := strings.ToLower(rawQuery)
		for param := range sensitiveParams {
			if strings.Contains(lower, param) {
				return true
			}
		}
		return false
	}
	for key := range values {
		if sensitiveParams[strings.ToLower(key)] {
			return true
		}
	}
	return false
}
