package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondr/rembg/internal/apperrors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "3f2c9a8e-user",
		"email": "user@example.com",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestTokenVerifier_Verify(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, "email")

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())

		identity, err := verifier.Verify("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", identity.Key)
		assert.Equal(t, "user@example.com", identity.Email)
		assert.Equal(t, "3f2c9a8e-user", identity.Subject)
	})

	rejections := []struct {
		name   string
		header func(t *testing.T) string
		code   apperrors.Code
	}{
		{
			name:   "empty credential",
			header: func(t *testing.T) string { return "" },
			code:   apperrors.MissingOrMalformed,
		},
		{
			name: "missing bearer prefix",
			header: func(t *testing.T) string {
				return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
			},
			code: apperrors.MissingOrMalformed,
		},
		{
			name:   "empty token segment",
			header: func(t *testing.T) string { return "Bearer    " },
			code:   apperrors.MissingOrMalformed,
		},
		{
			name: "lowercase scheme",
			header: func(t *testing.T) string {
				return "bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims())
			},
			code: apperrors.MissingOrMalformed,
		},
		{
			name: "expired token",
			header: func(t *testing.T) string {
				claims := validClaims()
				claims["exp"] = time.Now().Add(-time.Minute).Unix()
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
			},
			code: apperrors.TokenExpired,
		},
		{
			name: "invalid signature",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("wrong-secret"), validClaims())
			},
			code: apperrors.TokenInvalid,
		},
		{
			name: "other hmac algorithm",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims())
			},
			code: apperrors.TokenInvalid,
		},
		{
			name:   "malformed token",
			header: func(t *testing.T) string { return "Bearer not.a.jwt" },
			code:   apperrors.TokenInvalid,
		},
		{
			name: "no expiry",
			header: func(t *testing.T) string {
				claims := validClaims()
				delete(claims, "exp")
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
			},
			code: apperrors.TokenInvalid,
		},
		{
			name: "missing identity claim",
			header: func(t *testing.T) string {
				claims := validClaims()
				delete(claims, "email")
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
			},
			code: apperrors.MissingClaim,
		},
		{
			name: "blank identity claim",
			header: func(t *testing.T) string {
				claims := validClaims()
				claims["email"] = "  "
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)
			},
			code: apperrors.MissingClaim,
		},
	}

	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.header(t))
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))
		})
	}
}

func TestTokenVerifier_UsesClock(t *testing.T) {
	verifier := NewTokenVerifier(testSecret, "")
	claims := validClaims()
	claims["exp"] = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims)

	verifier.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := verifier.Verify("Bearer " + token)
	assert.True(t, apperrors.HasCode(err, apperrors.TokenExpired))

	verifier.now = func() time.Time { return time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = verifier.Verify("Bearer " + token)
	assert.NoError(t, err)
}
