package server

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/config"
	"github.com/jonathan/resource-pipeline/internal/types"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: "test-secret", ExpirationHours: 1, Issuer: config.DefaultJWTIssuer}
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	token, err := svc.GenerateToken("mod-1", auth.RoleModerator)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, types.Caller{ID: "mod-1", Role: auth.RoleModerator}, claims.GetCaller())
	assert.Equal(t, config.DefaultJWTIssuer, claims.Issuer)

	getter, err := svc.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mod-1", getter.GetCaller().ID)
}

func TestJWTService_GenerateRejectsBadInput(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	_, err := svc.GenerateToken("", auth.RoleViewer)
	assert.Error(t, err)

	_, err = svc.GenerateToken("u1", "superuser")
	assert.Error(t, err)
}

func TestJWTService_ValidateRejects(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	t.Run("empty", func(t *testing.T) {
		_, err := svc.ValidateToken("")
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.jwt")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(&config.JWTConfig{Secret: "other", ExpirationHours: 1, Issuer: config.DefaultJWTIssuer})
		token, err := other.GenerateToken("u1", auth.RoleViewer)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorContains(t, err, "signature")
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		claims := &Claims{
			UserID: "u1",
			Role:   auth.RoleViewer,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    config.DefaultJWTIssuer,
				ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(past),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorContains(t, err, "expired")
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService(&config.JWTConfig{Secret: "test-secret", ExpirationHours: 1, Issuer: "someone-else"})
		token, err := other.GenerateToken("u1", auth.RoleViewer)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := &Claims{
			UserID: "u1",
			Role:   "root",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    config.DefaultJWTIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorContains(t, err, "valid user and role")
	})
}
