package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resource-pipeline/internal/types"
)

type testTokenValidator struct {
	validTokens map[string]types.Caller
}

func (v *testTokenValidator) ValidateToken(tokenString string) (CallerGetter, error) {
	caller, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(caller), nil
}

type testClaims types.Caller

func (c testClaims) GetCaller() types.Caller { return types.Caller(c) }

func newValidator() *testTokenValidator {
	return &testTokenValidator{validTokens: map[string]types.Caller{
		"good-token": {ID: "mod-1", Role: "moderator"},
	}}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	var got types.Caller
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		require.True(t, ok)
		got = caller
		w.WriteHeader(http.StatusOK)
	})

	for _, header := range []string{"Bearer good-token", "bearer good-token", "BEARER  good-token"} {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()

		AuthMiddleware(newValidator())(handler).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, header)
		assert.Equal(t, types.Caller{ID: "mod-1", Role: "moderator"}, got)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic good-token"},
		{"no token", "Bearer"},
		{"extra parts", "Bearer good-token extra"},
		{"unknown token", "Bearer bad-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(newValidator())(handler).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, called)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestCallerFrom_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := CallerFrom(req.Context())
	assert.False(t, ok)
}
