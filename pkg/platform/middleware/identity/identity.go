// Package identity carries the caller identity asserted by the API gateway.
//
// Tokens are verified upstream; by the time a request reaches this service
// the gateway has replaced them with plain headers.
package identity

import (
	"context"
	"log/slog"
	"net/http"

	"userprofile/pkg/platform/strings"
)

const (
	HeaderUserID = "X-User-Id"
	HeaderRoles  = "X-User-Roles"
)

type contextKeyUserID struct{}
type contextKeyRoles struct{}

// GetUserID retrieves the caller id from the context.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeyUserID{}).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetRoles retrieves the caller roles from the context.
func GetRoles(ctx context.Context) []string {
	roles, ok := ctx.Value(contextKeyRoles{}).([]string)
	if !ok {
		return []string{}
	}
	return roles
}

// WithIdentity injects a caller into ctx. Useful in tests that skip the
// middleware chain.
func WithIdentity(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID{}, userID)
	return context.WithValue(ctx, contextKeyRoles{}, strings.DedupeAndTrim(roles))
}

// FromHeaders copies the gateway identity headers into the request context.
// Anonymous requests pass through with an empty user id.
func FromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithIdentity(r.Context(),
			r.Header.Get(HeaderUserID),
			strings.SplitList(r.Header.Get(HeaderRoles)),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without a caller id.
func RequireUser(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUserID(r.Context()) == "" {
				logger.WarnContext(r.Context(), "unauthenticated request", "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"missing caller identity"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
