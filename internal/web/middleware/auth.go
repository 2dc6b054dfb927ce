package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// OwnerHeader carries the id of the authenticated teacher. Authentication
// itself happens upstream; requests reaching this service are trusted.
const OwnerHeader = "X-User-ID"

// RequireOwner is middleware that requires a positive owner id in the X-User-ID header
func RequireOwner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(OwnerHeader)), 10, 64)
			if err != nil || ownerID <= 0 {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			// Add owner to context
			ctx := context.WithValue(r.Context(), ownerContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerFromContext retrieves the owner id from the request context, 0 if missing
func GetOwnerFromContext(ctx context.Context) int64 {
	ownerID, ok := ctx.Value(ownerContextKey).(int64)
	if !ok {
		return 0
	}
	return ownerID
}

// SetOwnerInContext adds an owner id to the context.
// This is primarily for testing - use RequireOwner middleware in production.
func SetOwnerInContext(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}
