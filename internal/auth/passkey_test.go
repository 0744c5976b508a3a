package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/chatd/internal/store"
)

type fakeLookup struct {
	users map[string]*store.User
	err   error
}

func (f fakeLookup) UserByPasskey(_ context.Context, passkey string) (*store.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[passkey]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user: %w", store.ErrNotFound)
}

func TestMiddleware(t *testing.T) {
	alice := &store.User{ID: "u1", Name: "alice"}
	lookup := fakeLookup{users: map[string]*store.User{"secret": alice}}

	var seen *store.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = u
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(l UserLookup, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		Middleware(l, slog.New(slog.NewTextHandler(io.Discard, nil)))(next).ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid passkey", func(t *testing.T) {
		rec := serve(lookup, "Bearer secret")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, alice, seen)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := serve(lookup, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"missing auth token"}`, rec.Body.String())
	})

	t.Run("scheme without token", func(t *testing.T) {
		rec := serve(lookup, "Bearer")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"missing auth token"}`, rec.Body.String())
	})

	t.Run("unknown passkey", func(t *testing.T) {
		rec := serve(lookup, "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"invalid token"}`, rec.Body.String())
	})

	t.Run("lookup failure", func(t *testing.T) {
		rec := serve(fakeLookup{err: errors.New("db down")}, "Bearer secret")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "invalid token"))
	})
}

func TestUserFromContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	u := &store.User{ID: "u1"}
	got, ok := UserFromContext(WithUser(context.Background(), u))
	require.True(t, ok)
	assert.Equal(t, u, got)
}
