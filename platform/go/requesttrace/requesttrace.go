package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/zenGate-Global/hubmetrix/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "HUBMETRIX_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindStoreUser ActorKind = "store_user"
	ActorKindProvider  ActorKind = "provider"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata for tracing.
// StoreHash and UserID are set for store users; Provider names the remote service that called us.
type AuditInfo struct {
	ActorKind ActorKind
	StoreHash string
	UserID    *int64
	Provider  string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromStoreUser builds an AuditInfo for a request made inside a store admin session.
func FromStoreUser(user *platformauth.StoreUser, requestID string) (AuditInfo, error) {
	if user == nil {
		return AuditInfo{}, errors.New("store user is required to build audit info")
	}
	if user.StoreHash == "" {
		return AuditInfo{}, errors.New("store hash is required to build audit info")
	}

	audit := AuditInfo{
		ActorKind: ActorKindStoreUser,
		StoreHash: user.StoreHash,
		RequestID: requestID,
	}
	if user.PlatformUserID != 0 {
		id := user.PlatformUserID
		audit.UserID = &id
	}
	return audit, nil
}

// Provider builds an AuditInfo for notifications pushed by a remote service.
func Provider(name, requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindProvider, Provider: name, RequestID: requestID}
}

// Anonymous builds an AuditInfo for requests without a session, such as install callbacks.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for operations started from the admin CLI.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
