package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	userID, tenantID := uuid.New(), uuid.New()

	token, err := GenerateToken(userID, tenantID, "ada@example.com", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestParseTokenRejects(t *testing.T) {
	userID, tenantID := uuid.New(), uuid.New()

	expired, err := GenerateToken(userID, tenantID, "a@b.c", secret, -time.Minute)
	require.NoError(t, err)

	valid, err := GenerateToken(userID, tenantID, "a@b.c", secret, time.Hour)
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignSigned, err := foreign.SignedString([]byte(secret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: userID, TenantID: tenantID}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"expired", expired, secret},
		{"wrong secret", valid, "other-secret"},
		{"wrong issuer", foreignSigned, secret},
		{"alg none", unsigned, secret},
		{"garbage", "not-a-token", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}
