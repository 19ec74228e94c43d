package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/zenGate-Global/hubmetrix/platform/go/session"
)

type ctxKey string

const (
	ctxStoreUser ctxKey = "HUBMETRIX_STORE_USER"
)

// StoreUser is the store admin user bound to the current browser session.
type StoreUser struct {
	StoreHash      string
	Email          string
	PlatformUserID int64
	HostedPageID   string
}

func UserFromContext(ctx context.Context) (*StoreUser, bool) {
	v := ctx.Value(ctxStoreUser)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*StoreUser)
	return u, ok
}

// WithUser returns a copy of ctx carrying the store user.
func WithUser(ctx context.Context, user *StoreUser) context.Context {
	return context.WithValue(ctx, ctxStoreUser, user)
}

// SessionLoader reads the session of a request.
type SessionLoader interface {
	Get(r *http.Request) (session.Data, error)
}

// Session resolves the request's session into a StoreUser when one exists. Requests without a
// session pass through anonymously; RequireStoreUser decides whether that is acceptable.
func Session(loader SessionLoader) func(http.Handler) http.Handler {
	if loader == nil {
		panic("auth.Session: loader must not be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := loader.Get(r)
			if err != nil {
				if !errors.Is(err, session.ErrNotFound) {
					http.Error(w, "session unavailable", http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if data.StoreHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			user := &StoreUser{
				StoreHash:      data.StoreHash,
				Email:          data.StoreUserEmail,
				PlatformUserID: data.PlatformUserID,
				HostedPageID:   data.HostedPageID,
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireStoreUser rejects requests that carry no session user.
func RequireStoreUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserFromContext(r.Context()); !ok || user == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
