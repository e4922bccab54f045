package token

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestJWT_AccessToken_Roundtrip(t *testing.T) {
	j := NewJWT("secret")
	u := uuid.New()
	s := uuid.New()

	access, err := j.GenerateAccessToken(u, s)
	require.NoError(t, err)

	gotUser, gotSession, err := j.ParseAccessToken(access)
	require.NoError(t, err)
	require.Equal(t, u, gotUser)
	require.Equal(t, s, gotSession)
}

func TestJWT_WrongSecret(t *testing.T) {
	j := NewJWT("secret")
	other := NewJWT("other")

	access, err := j.GenerateAccessToken(uuid.New(), uuid.New())
	require.NoError(t, err)

	_, _, err = other.ParseAccessToken(access)
	require.Error(t, err)
}

func TestJWT_Garbage(t *testing.T) {
	j := NewJWT("secret")

	_, _, err := j.ParseAccessToken("not-a-token")
	require.Error(t, err)
}
