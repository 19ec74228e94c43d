package bigcommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		LoginURL:     srv.URL,
		APIURL:       srv.URL,
	}, zaptest.NewLogger(t))
}

func TestExchangeCodeForToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth2/token", r.URL.Path)

		var body tokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client-id", body.ClientID)
		assert.Equal(t, "client-secret", body.ClientSecret)
		assert.Equal(t, "the-code", body.Code)
		assert.Equal(t, "authorization_code", body.GrantType)
		assert.Equal(t, "https://app.example.com/bigcommerce/callback", body.RedirectURI)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","scope":"store_v2_orders","context":"stores/abc123","user":{"id":42,"username":"owner","email":"owner@example.com"}}`))
	}))

	token, err := client.ExchangeCodeForToken(context.Background(), "the-code", "stores/abc123", "store_v2_orders", "https://app.example.com/bigcommerce/callback")
	require.NoError(t, err)
	require.Equal(t, Token{
		AccessToken: "tok",
		Scope:       "store_v2_orders",
		StoreHash:   "abc123",
		UserID:      42,
		Email:       "owner@example.com",
	}, token)
}

func TestExchangeCodeForTokenFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"invalid_grant"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "missing token", status: http.StatusOK, body: `{"user":{"id":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := client.ExchangeCodeForToken(context.Background(), "code", "stores/abc", "scope", "https://x")
			require.ErrorIs(t, err, ErrAuthExchange)
		})
	}
}

func TestExchangeCodeForTokenRequiresCredentials(t *testing.T) {
	client := New(Config{}, nil)
	_, err := client.ExchangeCodeForToken(context.Background(), "code", "stores/abc", "scope", "https://x")
	require.ErrorIs(t, err, ErrConfig)
}

func TestHooksLifecycle(t *testing.T) {
	var created []createHookRequest
	var updates []string
	var deleted []string

	mux := http.NewServeMux()
	mux.HandleFunc("/stores/abc/v3/hooks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Auth-Token"))
		assert.Equal(t, "client-id", r.Header.Get("X-Auth-Client"))
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"data":[{"id":1,"scope":"store/order/created","destination":"https://x/orders","is_active":false}]}`))
		case http.MethodPost:
			var body createHookRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			created = append(created, body)
			_, _ = w.Write([]byte(`{"data":{"id":2,"scope":"` + body.Scope + `","destination":"` + body.Destination + `","is_active":true}}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/stores/abc/v3/hooks/1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var body updateHookRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body.IsActive {
				updates = append(updates, "on")
			} else {
				updates = append(updates, "off")
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":1}}`))
		case http.MethodDelete:
			deleted = append(deleted, "1")
			w.WriteHeader(http.StatusNoContent)
		}
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	hooks, err := client.ListHooks(ctx, "abc", "tok")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.Equal(t, int64(1), hooks[0].ID)
	require.False(t, hooks[0].IsActive)

	hook, err := client.CreateHook(ctx, "abc", "tok", "store/customer/updated", "https://x/customers")
	require.NoError(t, err)
	require.Equal(t, int64(2), hook.ID)
	require.Equal(t, []createHookRequest{{Scope: "store/customer/updated", Destination: "https://x/customers", IsActive: true}}, created)

	require.NoError(t, client.SetHookActive(ctx, "abc", "tok", 1, true))
	require.NoError(t, client.SetHookActive(ctx, "abc", "tok", 1, false))
	require.Equal(t, []string{"on", "off"}, updates)

	require.NoError(t, client.DeleteHook(ctx, "abc", "tok", 1))
	require.Equal(t, []string{"1"}, deleted)
}

func TestStoreAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "bad gateway", status: http.StatusBadGateway, want: ErrTransientProvider},
		{name: "service unavailable", status: http.StatusServiceUnavailable, want: ErrTransientProvider},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: ErrTransientProvider},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrRequest},
		{name: "not found", status: http.StatusNotFound, want: ErrRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := client.ListHooks(context.Background(), "abc", "tok")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Config{ClientID: "id", ClientSecret: "secret", APIURL: url}, zaptest.NewLogger(t))
	_, err := client.ListHooks(context.Background(), "abc", "tok")
	require.ErrorIs(t, err, ErrTransientProvider)
}

func TestGetStoreInfo(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stores/abc/v2/store", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","name":"Surf Shop","first_name":"Kai","last_name":"Lee","address":"123 Easy St.\nHonolulu HI 96822","admin_email":"kai@example.com","country_code":"US","phone":"555-0100"}`))
	}))

	info, err := client.GetStoreInfo(context.Background(), "abc", "tok")
	require.NoError(t, err)
	require.Equal(t, "abc", info.ID)
	require.Equal(t, "Surf Shop", info.Name)
	require.Equal(t, "123 Easy St.\nHonolulu HI 96822", info.Address)
	require.Equal(t, "kai@example.com", info.AdminEmail)
}

func TestStoreHashFromContext(t *testing.T) {
	require.Equal(t, "abc", StoreHashFromContext("stores/abc"))
	require.Equal(t, "abc", StoreHashFromContext("abc"))
	require.Equal(t, "", StoreHashFromContext(""))
}
