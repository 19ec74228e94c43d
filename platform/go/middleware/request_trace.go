package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/hubmetrix/platform/go/auth"
	platformlogging "github.com/zenGate-Global/hubmetrix/platform/go/logging"
	"github.com/zenGate-Global/hubmetrix/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo and tags the request logger
// with the actor. It should run after the session middleware so the store user is available.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		audit := requesttrace.Anonymous(requestID)
		if user, ok := platformauth.UserFromContext(r.Context()); ok && user != nil {
			var err error
			audit, err = requesttrace.FromStoreUser(user, requestID)
			if err != nil {
				platformlogging.Ctx(r.Context(), nil).Error("build audit info from session", zap.Error(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(withAudit(r, audit)))
	})
}

// ProviderTrace marks requests on a route group as pushed by the named remote service.
func ProviderTrace(provider string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)
			next.ServeHTTP(w, r.WithContext(withAudit(r, requesttrace.Provider(provider, requestID))))
		})
	}
}

func withAudit(r *http.Request, audit requesttrace.AuditInfo) context.Context {
	ctx := requesttrace.IntoContext(r.Context(), audit)

	fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
	if audit.StoreHash != "" {
		fields = append(fields, zap.String("store_hash", audit.StoreHash))
	}
	if audit.Provider != "" {
		fields = append(fields, zap.String("provider", audit.Provider))
	}
	return platformlogging.With(ctx, fields...)
}
