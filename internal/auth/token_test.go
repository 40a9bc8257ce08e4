// internal/auth/token_test.go
package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifyToken(t *testing.T) {
	require.NoError(t, Init())

	userID := uuid.New()
	token, err := CreateToken(userID, "ada")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	gotID, gotName, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "ada", gotName)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, _, err := VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestKeyRotationInvalidatesOldTokens(t *testing.T) {
	require.NoError(t, Init())
	token, err := CreateToken(uuid.New(), "ada")
	require.NoError(t, err)

	// new keys, old token must fail
	require.NoError(t, Init())
	_, _, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestParseTokenTTL(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "24h")
	require.NoError(t, Init())
	token, err := CreateToken(uuid.New(), "ada")
	require.NoError(t, err)
	_, _, err = VerifyToken(token)
	assert.NoError(t, err)

	t.Setenv("TOKEN_EXPIRE_TIME", "bogus")
	assert.Error(t, Init())
}
