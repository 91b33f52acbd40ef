package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shikshasetu/shiksha-client/internal/model"
)

// signTestToken builds a signed platform-style JWT. The signature secret
// is irrelevant — the client parses unverified.
func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret-not-checked"))
	require.NoError(t, err)
	return signed
}

func TestParseClaims(t *testing.T) {
	tokenStr := signTestToken(t, jwt.MapClaims{"id": "u-42", "role": "instructor"})

	claims, err := ParseClaims(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "u-42", claims.UserID)
	assert.Equal(t, model.RoleInstructor, claims.Role)
}

func TestParseClaimsMalformed(t *testing.T) {
	for _, tokenStr := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := ParseClaims(tokenStr)
		assert.Error(t, err, "token %q should not parse", tokenStr)
	}
}

func TestParseClaimsMissingUserID(t *testing.T) {
	tokenStr := signTestToken(t, jwt.MapClaims{"role": "student"})

	_, err := ParseClaims(tokenStr)
	assert.Error(t, err)
}

func TestWellFormed(t *testing.T) {
	assert.True(t, WellFormed(signTestToken(t, jwt.MapClaims{"id": "u-1"})))
	assert.False(t, WellFormed("not-a-jwt"))
	assert.False(t, WellFormed(""))
}
