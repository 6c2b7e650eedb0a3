package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "test-signing-secret"

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken(jwtSecret, "42", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(jwtSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(jwtSecret, "42", time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken("another-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken(jwtSecret, "42", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(jwtSecret, token)
	assert.Error(t, err)
}

func TestConfirmTokenRoundTrip(t *testing.T) {
	token, err := GenerateConfirmToken(jwtSecret, 1, 7)
	require.NoError(t, err)

	assert.NoError(t, ValidateConfirmToken(jwtSecret, token, 1, 7))
}

func TestConfirmTokenBindsUserAndAccount(t *testing.T) {
	token, err := GenerateConfirmToken(jwtSecret, 1, 7)
	require.NoError(t, err)

	assert.Error(t, ValidateConfirmToken(jwtSecret, token, 2, 7), "different user")
	assert.Error(t, ValidateConfirmToken(jwtSecret, token, 1, 8), "different account")
}

func TestConfirmTokenIsNotASessionToken(t *testing.T) {
	session, err := GenerateToken(jwtSecret, "1", time.Hour)
	require.NoError(t, err)

	assert.Error(t, ValidateConfirmToken(jwtSecret, session, 1, 7))
}
