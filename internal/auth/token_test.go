package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long-!!", 24*time.Hour)

	token, err := tm.GenerateSessionToken("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long-!!", 24*time.Hour)
	other := NewTokenManager("another-secret-32-characters-long", 24*time.Hour)

	token, err := tm.GenerateSessionToken("alice")
	require.NoError(t, err)

	_, err = other.ValidateSessionToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long-!!", -time.Minute)

	token, err := tm.GenerateSessionToken("alice")
	require.NoError(t, err)

	_, err = tm.ValidateSessionToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret-32-characters-long-!!", 24*time.Hour)

	_, err := tm.ValidateSessionToken("not.a.token")
	assert.Error(t, err)
}
