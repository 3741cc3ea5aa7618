package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	v := NewTokenVerifier("s3cret")
	token, err := v.Issue("staff-1", RoleAdmin, "kitchen@venue.test", time.Hour)
	require.NoError(t, err)

	claims, err := v.Parse(token, "access")
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	v := NewTokenVerifier("s3cret")

	expired, err := v.Issue("staff-1", RoleAdmin, "", -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(expired, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewTokenVerifier("other").Issue("staff-1", RoleAdmin, "", time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(foreign, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"role": RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Parse(unsigned, "")
	assert.Error(t, err)
}

func TestParseWithoutSecret(t *testing.T) {
	_, err := NewTokenVerifier("  ").Parse("x.y.z", "")
	assert.ErrorIs(t, err, ErrNoSecret)
}
