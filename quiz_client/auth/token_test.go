package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStaticToken(t *testing.T) {
	_, err := StaticToken("").Token()
	require.ErrorIs(t, err, ErrMissingToken)

	got, err := StaticToken("abc").Token()
	require.NoError(t, err)
	require.Equal(t, "abc", got)
}

func TestCheckToken(t *testing.T) {
	now := time.Now()

	require.ErrorIs(t, CheckToken("", now), ErrMissingToken)
	require.Error(t, CheckToken("not-a-jwt", now))

	valid := signToken(t, "student-1", now.Add(time.Hour))
	require.NoError(t, CheckToken(valid, now))

	expired := signToken(t, "student-1", now.Add(-time.Minute))
	require.ErrorIs(t, CheckToken(expired, now), ErrTokenExpired)
}

func TestSubjectOf(t *testing.T) {
	token := signToken(t, "student-42", time.Now().Add(time.Hour))

	sub, err := SubjectOf(token)
	require.NoError(t, err)
	require.Equal(t, "student-42", sub)

	_, err = SubjectOf("garbage")
	require.Error(t, err)
}
