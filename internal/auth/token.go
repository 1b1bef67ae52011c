package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/models"
)

// TokenManager issues the short-lived challenge token handed out after a
// correct password when a second factor is still required, and the access
// token issued once authentication is complete.
type TokenManager struct {
	secret          []byte
	accessExpiry    time.Duration
	challengeExpiry time.Duration
	clock           clock.Clock
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret []byte, accessExpiry, challengeExpiry time.Duration, clk clock.Clock) *TokenManager {
	if clk == nil {
		clk = clock.System{}
	}
	return &TokenManager{
		secret:          secret,
		accessExpiry:    accessExpiry,
		challengeExpiry: challengeExpiry,
		clock:           clk,
	}
}

// GenerateAccessToken creates a short-lived access token with JTI
func (tm *TokenManager) GenerateAccessToken(userID, email string, roles []string) (string, error) {
	return tm.sign(models.TokenTypeAccess, userID, email, roles, tm.accessExpiry)
}

// GenerateChallengeToken creates a token proving the password step succeeded
func (tm *TokenManager) GenerateChallengeToken(userID, email string) (string, error) {
	return tm.sign(models.TokenTypeChallenge, userID, email, nil, tm.challengeExpiry)
}

func (tm *TokenManager) sign(tokenType, userID, email string, roles []string, expiry time.Duration) (string, error) {
	now := tm.clock.Now()
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return tokenString, nil
}

// ValidateToken verifies a token of the expected type and returns its claims
func (tm *TokenManager) ValidateToken(tokenString, wantType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != wantType {
		return nil, fmt.Errorf("invalid token: expected %s, got %q", wantType, claims.Type)
	}

	return claims, nil
}
