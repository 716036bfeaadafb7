// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jonathan/resource-pipeline/internal/types"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const callerKey ContextKey = "caller"

// TokenValidator validates a bearer token and resolves the caller it names.
type TokenValidator interface {
	ValidateToken(tokenString string) (CallerGetter, error)
}

// CallerGetter extracts the caller from validated token claims.
type CallerGetter interface {
	GetCaller() types.Caller
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the resolved caller in the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w)
				return
			}

			// "Bearer" is matched case-insensitively.
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.GetCaller())))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="resource-pipeline"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller types.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (types.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(types.Caller)
	return caller, ok
}
