package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/models"
)

func TestTokenManager_ChallengeRoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tm := NewTokenManager([]byte("signing-key-for-tests-0123456789"), 15*time.Minute, 5*time.Minute, clk)

	token, err := tm.GenerateChallengeToken("user-1", "user@example.com")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token, models.TokenTypeChallenge)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_TypeMismatch(t *testing.T) {
	tm := NewTokenManager([]byte("signing-key-for-tests-0123456789"), 15*time.Minute, 5*time.Minute, nil)

	token, err := tm.GenerateChallengeToken("user-1", "user@example.com")
	require.NoError(t, err)

	_, err = tm.ValidateToken(token, models.TokenTypeAccess)
	assert.ErrorContains(t, err, "expected access")
}

func TestTokenManager_Expired(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tm := NewTokenManager([]byte("signing-key-for-tests-0123456789"), 15*time.Minute, 5*time.Minute, clk)

	token, err := tm.GenerateChallengeToken("user-1", "user@example.com")
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	_, err = tm.ValidateToken(token, models.TokenTypeChallenge)
	assert.Error(t, err)
}

func TestTokenManager_WrongKey(t *testing.T) {
	a := NewTokenManager([]byte("signing-key-a-for-tests-01234567"), time.Minute, time.Minute, nil)
	b := NewTokenManager([]byte("signing-key-b-for-tests-01234567"), time.Minute, time.Minute, nil)

	token, err := a.GenerateAccessToken("user-1", "user@example.com", []string{"admin"})
	require.NoError(t, err)

	_, err = b.ValidateToken(token, models.TokenTypeAccess)
	assert.Error(t, err)
}
