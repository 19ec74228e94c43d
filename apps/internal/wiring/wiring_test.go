package wiring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func memoryConfig() Config {
	return Config{
		StoreConfig:    StoreConfig{StoreBackend: BackendMemory},
		SessionBackend: BackendMemory,
		HSClientID:     "hs-client",
		AppURL:         "https://app.example.com",
		BackendURL:     "https://ingest.example.com",
	}
}

func TestBuildWithMemoryBackends(t *testing.T) {
	app, err := Build(context.Background(), memoryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NotNil(t, app.Tenants)
	require.NotNil(t, app.Webhooks)
	require.NotNil(t, app.Provisioning)
	require.NotNil(t, app.Sessions)
	require.Contains(t, app.Provisioning.CRMAuthorizeURL(), "client_id=hs-client")
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "sqlite"
	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorContains(t, err, "STORE_BACKEND")

	cfg = memoryConfig()
	cfg.SessionBackend = "memcached"
	_, err = Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorContains(t, err, "SESSION_BACKEND")
}

func TestBootstrapMemoryIsNoop(t *testing.T) {
	require.NoError(t, Bootstrap(context.Background(), StoreConfig{StoreBackend: "MEMORY"}))
	require.ErrorContains(t, Bootstrap(context.Background(), StoreConfig{StoreBackend: "sqlite"}), "STORE_BACKEND")
}
