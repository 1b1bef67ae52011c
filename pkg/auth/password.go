package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 12
	MaxPasswordLen = 72 // bcrypt ignores bytes past 72
)

// ErrPasswordMismatch is returned by ComparePassword for a wrong password
var ErrPasswordMismatch = errors.New("password mismatch")

// PasswordValidationError lists every requirement the password missed.
// Error never names them so callers cannot echo them to an attacker.
type PasswordValidationError struct {
	Problems []string
}

func (e *PasswordValidationError) Error() string {
	return "invalid password"
}

var commonPasswords = map[string]bool{
	"password1234": true,
	"password123!": true,
	"qwertyuiop12": true,
	"letmein12345": true,
	"welcome12345": true,
	"adminadmin12": true,
	"changeme1234": true,
	"iloveyou1234": true,
}

// HashPassword hashes a principal's password with bcrypt
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// ComparePassword checks password against a bcrypt hash
func ComparePassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// ValidatePassword checks a password chosen for a bootstrapped principal
func ValidatePassword(password string) error {
	var problems []string

	if len(password) < MinPasswordLen {
		problems = append(problems, fmt.Sprintf("shorter than %d bytes", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		problems = append(problems, fmt.Sprintf("longer than %d bytes", MaxPasswordLen))
	}

	var classes int
	for _, has := range []func(rune) bool{unicode.IsUpper, unicode.IsLower, unicode.IsDigit, isSymbol} {
		if strings.IndexFunc(password, has) >= 0 {
			classes++
		}
	}
	if classes < 3 {
		problems = append(problems, "fewer than three character classes")
	}

	if commonPasswords[strings.ToLower(password)] {
		problems = append(problems, "common password")
	}

	if len(problems) > 0 {
		return &PasswordValidationError{Problems: problems}
	}
	return nil
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
