package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/rampart/pkg/logger"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", logger.SanitizedEmail("alice@example.com"))
	assert.Equal(t, "b@****.***.uk", logger.SanitizedEmail("b@mail.gov.uk"))
	assert.Equal(t, "[invalid-email]", logger.SanitizedEmail("not-an-email"))
	assert.Equal(t, "[invalid-email]", logger.SanitizedEmail("a@b@c.com"))
}

func TestSanitizeQueryString(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"", false},
		{"page=2", false},
		{"author=bob", false},
		{"token=abc123", true},
		{"Code=123456", true},
		{"next=/home&challenge_token=x", true},
		{"%zz&password=1", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logger.SanitizeQueryString(tt.query), "query %q", tt.query)
	}
}

func TestRedactField(t *testing.T) {
	assert.Equal(t, "[REDACTED]", logger.RedactField(logger.AuditTypeAuth, "secret", "JBSWY3DP", "development").Value.String())
	assert.Equal(t, "JBSWY3DP", logger.RedactField(logger.AuditTypeDefense, "secret", "JBSWY3DP", "development").Value.String())
	assert.Equal(t, "[REDACTED]", logger.RedactField(logger.AuditTypeDefense, "username", "alice", "production").Value.String())
	assert.Equal(t, "alice", logger.RedactField(logger.AuditTypeAuth, "username", "alice", "staging").Value.String())
}
