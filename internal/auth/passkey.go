package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yolodolo42/chatd/internal/store"
)

// UserLookup resolves a passkey to its user
type UserLookup interface {
	UserByPasskey(ctx context.Context, passkey string) (*store.User, error)
}

type contextKey string

const userContextKey contextKey = "user"

// Middleware authenticates requests by the bearer passkey in the Authorization
// header and stores the user in the request context
func Middleware(lookup UserLookup, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passkey := BearerToken(r)
			if passkey == "" {
				writeUnauthorized(w, "missing auth token")
				return
			}

			user, err := lookup.UserByPasskey(r.Context(), passkey)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					logger.Error("passkey lookup failed", "error", err)
				}
				writeUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken returns the second field of the Authorization header
func BearerToken(r *http.Request) string {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated user of the request
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userContextKey).(*store.User)
	return u, ok && u != nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
