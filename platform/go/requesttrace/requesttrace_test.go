package requesttrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/hubmetrix/platform/go/auth"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := AuditInfo{ActorKind: ActorKindStoreUser, StoreHash: "abc", RequestID: "req-abc"}

	ctx := IntoContext(context.Background(), audit)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, audit, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}

func TestFromStoreUser(t *testing.T) {
	audit, err := FromStoreUser(&platformauth.StoreUser{StoreHash: "abc", PlatformUserID: 7}, "req-xyz")
	require.NoError(t, err)
	require.Equal(t, ActorKindStoreUser, audit.ActorKind)
	require.Equal(t, "abc", audit.StoreHash)
	require.NotNil(t, audit.UserID)
	require.Equal(t, int64(7), *audit.UserID)
	require.Equal(t, "req-xyz", audit.RequestID)

	audit, err = FromStoreUser(&platformauth.StoreUser{StoreHash: "abc"}, "")
	require.NoError(t, err)
	require.Nil(t, audit.UserID)
}

func TestFromStoreUserErrors(t *testing.T) {
	_, err := FromStoreUser(nil, "req")
	require.Error(t, err)

	_, err = FromStoreUser(&platformauth.StoreUser{}, "req")
	require.Error(t, err)
}

func TestProviderAndSystem(t *testing.T) {
	require.Equal(t, AuditInfo{ActorKind: ActorKindProvider, Provider: "chargebee", RequestID: "r"}, Provider("chargebee", "r"))
	require.Equal(t, AuditInfo{ActorKind: ActorKindSystem, RequestID: "r"}, System("r"))
}
