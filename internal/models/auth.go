package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types
const (
	TokenTypeAccess    = "access"
	TokenTypeChallenge = "2fa_challenge"
)

type TokenClaims struct {
	Type   string   `json:"type"`
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}
