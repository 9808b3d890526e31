package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)

	ok, err := CheckPasswordHash("pw1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPasswordHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes must be salted")
}

func TestCheckPasswordHash_Plaintext(t *testing.T) {
	ok, err := CheckPasswordHash("pw1", "pw1")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("secret", "sess-1", "alice", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := GenerateJWT("secret", "sess-1", "alice", "admin", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT("other", token)
	assert.Error(t, err)
}

func TestValidateJWT_Expired(t *testing.T) {
	token, err := GenerateJWT("secret", "sess-1", "alice", "user", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT("secret", token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
