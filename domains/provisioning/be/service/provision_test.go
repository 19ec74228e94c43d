package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
	"github.com/zenGate-Global/hubmetrix/platform/go/eventdedupe"
)

func TestCheckAndProvisionActiveSubscription(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	h.billing.add(testEmail, activeSubscription("sub_1"))

	ok, err := h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)

	tenant := h.tenant(t)
	require.Equal(t, "sub_1", tenant.BillingSubscriptionID)
	require.True(t, tenant.WebhooksRegistered)
	require.Equal(t, map[string]string{MetadataStoreHash: testStoreHash}, h.billing.attached["sub_1"])

	total, active := h.platform.hookCounts()
	require.Equal(t, 3, total)
	require.Equal(t, 3, active)
}

func TestCheckAndProvisionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	h.billing.add(testEmail, activeSubscription("sub_1"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := h.svc.CheckAndProvisionSubscription(ctx, testStoreHash)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.Equal(t, "sub_1", h.tenant(t).BillingSubscriptionID)
	require.Equal(t, 1, h.billing.attachCalls)
	require.Zero(t, h.billing.pageCreates)
	total, _ := h.platform.hookCounts()
	require.Equal(t, 3, total)
}

func TestCheckAndProvisionCancelledSubscriptionSuspends(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	ctx := context.Background()

	h.billing.add(testEmail, activeSubscription("sub_1"))
	ok, err := h.svc.CheckAndProvisionSubscription(ctx, testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)

	h.billing.add(testEmail, cancelledSubscription("sub_1"))
	ok, err = h.svc.CheckAndProvisionSubscription(ctx, testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)

	tenant := h.tenant(t)
	require.False(t, tenant.WebhooksRegistered)
	require.Equal(t, "sub_1", tenant.BillingSubscriptionID)
	require.Equal(t, "crm-access", tenant.CRMAccessToken)

	total, active := h.platform.hookCounts()
	require.Equal(t, 3, total)
	require.Zero(t, active)
}

func TestCheckAndProvisionWithoutSubscription(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)

	ok, err := h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
	require.NoError(t, err)
	require.False(t, ok)

	tenant := h.tenant(t)
	require.Empty(t, tenant.BillingSubscriptionID)
	require.False(t, tenant.WebhooksRegistered)
	total, _ := h.platform.hookCounts()
	require.Zero(t, total)
}

func TestCheckAndProvisionTransientPlatformFailure(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	h.billing.add(testEmail, activeSubscription("sub_1"))
	h.platform.failOn["list"] = fmt.Errorf("list hooks: status 502: %w", bigcommerce.ErrTransientProvider)

	result, err := h.svc.Provision(context.Background(), testStoreHash)
	require.NoError(t, err)
	require.True(t, result.SubscriptionFound)
	require.False(t, result.WebhooksSynced)
	require.False(t, result.Provisioned)

	tenant := h.tenant(t)
	require.False(t, tenant.WebhooksRegistered)
	require.Equal(t, "sub_1", tenant.BillingSubscriptionID)

	// The next callback retries once the platform recovers.
	delete(h.platform.failOn, "list")
	ok, err := h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, h.tenant(t).WebhooksRegistered)
}

func TestCheckAndProvisionPlatformErrorIsReturned(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	h.billing.add(testEmail, activeSubscription("sub_1"))
	h.platform.failOn["create"] = fmt.Errorf("create hook: status 422: %w", bigcommerce.ErrRequest)

	ok, err := h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
	require.ErrorIs(t, err, bigcommerce.ErrRequest)
	require.False(t, ok)
	require.False(t, h.tenant(t).WebhooksRegistered)
}

func TestCheckAndProvisionKeepsStoredSubscriptionID(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	ctx := context.Background()

	_, err := h.tenants.Update(ctx, testStoreHash, func(t *tenants.Tenant) error {
		t.BillingSubscriptionID = "sub_old"
		return nil
	})
	require.NoError(t, err)
	h.billing.add("", cancelledSubscription("sub_old"))
	h.billing.add(testEmail, activeSubscription("sub_new"))

	result, err := h.svc.Provision(ctx, testStoreHash)
	require.NoError(t, err)
	require.True(t, result.Provisioned)
	require.Equal(t, "sub_old", result.Subscription.ID)

	tenant := h.tenant(t)
	require.Equal(t, "sub_old", tenant.BillingSubscriptionID)
	require.False(t, tenant.WebhooksRegistered)
	require.Equal(t, 1, h.billing.attachCalls)
	require.Equal(t, testStoreHash, h.billing.attached["sub_old"][MetadataStoreHash])
	require.NotContains(t, h.billing.attached, "sub_new")
}

func TestCheckAndProvisionFallsBackToStoredSubscriptionID(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	ctx := context.Background()

	_, err := h.tenants.Update(ctx, testStoreHash, func(t *tenants.Tenant) error {
		t.BillingSubscriptionID = "sub_1"
		return nil
	})
	require.NoError(t, err)
	h.billing.add("", activeSubscription("sub_1"))

	ok, err := h.svc.CheckAndProvisionSubscription(ctx, testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, h.tenant(t).WebhooksRegistered)
}

func TestCheckAndProvisionMetadataFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	h.billing.add(testEmail, activeSubscription("sub_1"))
	h.billing.attachErr = fmt.Errorf("attach: %w", chargebee.ErrMetadataAnnotation)

	ok, err := h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sub_1", h.tenant(t).BillingSubscriptionID)
}

func TestCheckAndProvisionErrors(t *testing.T) {
	t.Run("unknown store", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.CheckAndProvisionSubscription(context.Background(), "nope")
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("record without platform token", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.tenants.Create(context.Background(), tenants.Tenant{StoreHash: testStoreHash, PlatformUserID: 1})
		require.NoError(t, err)
		_, err = h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("billing misconfigured", func(t *testing.T) {
		h := newHarness(t)
		h.installed(t, true)
		h.billing.findErr = chargebee.ErrConfig
		_, err := h.svc.CheckAndProvisionSubscription(context.Background(), testStoreHash)
		require.ErrorIs(t, err, chargebee.ErrConfig)
	})
}

func TestDeriveState(t *testing.T) {
	linked := tenants.Tenant{CRMAccessToken: "crm"}
	active := activeSubscription("sub_1")
	cancelled := cancelledSubscription("sub_1")
	nonRenewing := activeSubscription("sub_1")
	nonRenewing.Status = chargebee.StatusNonRenewing
	scheduled := activeSubscription("sub_1")
	later := testNow.Add(48 * time.Hour)
	scheduled.CancelledAt = &later

	tests := []struct {
		name   string
		tenant tenants.Tenant
		sub    *chargebee.Subscription
		want   State
	}{
		{name: "no crm", tenant: tenants.Tenant{}, sub: &active, want: StateInstalledNoCRM},
		{name: "no subscription", tenant: linked, want: StateCRMLinkedNoSubscription},
		{name: "active", tenant: linked, sub: &active, want: StateSubscribedActive},
		{name: "non renewing", tenant: linked, sub: &nonRenewing, want: StateSubscribedCancelling},
		{name: "cancellation scheduled", tenant: linked, sub: &scheduled, want: StateSubscribedCancelling},
		{name: "cancelled", tenant: linked, sub: &cancelled, want: StateSubscribedCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DeriveState(tt.tenant, tt.sub, testNow))
		})
	}
}

func TestNewPanicsOnMissingDependencies(t *testing.T) {
	h := newHarness(t)
	deps := Dependencies{
		Tenants:   h.tenants,
		Platform:  h.platform,
		CRM:       h.crm,
		Billing:   h.billing,
		Webhooks:  h.svc.webhooks,
		Dedupe:    h.dedupe,
		Validator: h.svc.validator,
	}

	require.NotPanics(t, func() { New(deps, Config{AppURL: testAppURL}, nil) })
	require.Panics(t, func() { New(deps, Config{}, nil) })

	noBilling := deps
	noBilling.Billing = nil
	require.Panics(t, func() { New(noBilling, Config{AppURL: testAppURL}, nil) })

	svc := New(deps, Config{AppURL: testAppURL}, nil)
	require.Equal(t, chargebee.DefaultPlanID, svc.cfg.PlanID)
	require.Equal(t, eventdedupe.DefaultTTL, svc.cfg.EventTTL)
}
