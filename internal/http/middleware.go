package http

import (
	"context"
	"net/http"
)

type contextKey string

const (
	guestIDKey contextKey = "guest_id"
	roleKey    contextKey = "caller_role"
)

// IdentityMiddleware resolves the caller identity the upstream auth layer
// already established. The core trusts these headers and performs no
// credential checking itself.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if guestID := r.Header.Get("X-Guest-ID"); guestID != "" {
			ctx = context.WithValue(ctx, guestIDKey, guestID)
		}
		if role := r.Header.Get("X-Caller-Role"); role != "" {
			ctx = context.WithValue(ctx, roleKey, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func guestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(guestIDKey).(string); ok {
		return v
	}
	return ""
}

func roleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey).(string); ok {
		return v
	}
	return ""
}
