package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"datacleaner/internal/models"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("correct horse", fastParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(hash), "$argon2id$v=19$t=1,m=8192,p=1$"))

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword("battery staple", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPasswordSaltsDiffer(t *testing.T) {
	a, err := HashPasswordWithParams("pw", fastParams)
	require.NoError(t, err)
	b, err := HashPasswordWithParams("pw", fastParams)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "plain", "$bcrypt$v=19$t=1,m=1,p=1$aa$bb", "$argon2id$v=1$t=1,m=1,p=1$aa$bb"} {
		_, err := VerifyPassword("pw", []byte(raw))
		require.ErrorIs(t, err, ErrMalformedHash, raw)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	user := models.User{ID: 42, Role: models.UserRolePro}

	token, expires, err := GenerateAccessToken("secret", user, time.Minute)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), expires, 2*time.Second)

	claims, err := ParseAccessToken(token, "secret")
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, models.UserRolePro, claims.Role)
	require.Equal(t, "42", claims.Subject)
	require.NotEmpty(t, claims.ID)
}

func TestAccessTokenRejected(t *testing.T) {
	user := models.User{ID: 1, Role: models.UserRoleFree}

	token, _, err := GenerateAccessToken("secret", user, time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(token, "other")
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := GenerateAccessToken("secret", user, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(expired, "secret")
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(unsigned, "secret")
	require.ErrorIs(t, err, ErrInvalidToken)
}
