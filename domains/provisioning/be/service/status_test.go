package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
)

func TestStatusActiveSubscription(t *testing.T) {
	h := newHarness(t)
	h.installed(t, true)
	sub := activeSubscription("sub_1")
	sub.PlanUnitPrice = decimal.RequireFromString("49")
	h.billing.add(testEmail, sub)
	ctx := context.Background()

	ok, err := h.svc.CheckAndProvisionSubscription(ctx, testStoreHash)
	require.NoError(t, err)
	require.True(t, ok)

	summary, err := h.svc.Status(ctx, testStoreHash)
	require.NoError(t, err)
	require.Equal(t, StatusSummary{
		StoreHash:         testStoreHash,
		State:             StateSubscribedActive,
		SubscriptionID:    "sub_1",
		SubscriptionState: chargebee.StatusActive,
		Price:             "49.00 USD",
		NextCharge:        testNow.Add(30 * 24 * time.Hour).Format(time.RFC850),
		NextChargeExplain: "Your subscription renews and is charged on this date.",
		DaysLeft:          30,
		DaysLeftText:      "Days Left In Subscription: 30",
		LastSync:          "Never",
		WebhooksActive:    true,
	}, summary)
}

func TestStatusCancellingSubscription(t *testing.T) {
	h := newHarness(t)
	sub := activeSubscription("sub_1")
	sub.Status = chargebee.StatusNonRenewing
	ends := testNow.Add(10*24*time.Hour + 5*time.Hour)
	sub.CancelledAt = &ends
	h.billing.add(testEmail, sub)
	ctx := context.Background()

	// The sync worker owns the timestamp, so it is seeded at creation.
	synced := testNow.Add(-time.Hour)
	_, err := h.tenants.Create(ctx, tenants.Tenant{
		StoreHash:             testStoreHash,
		PlatformUserID:        42,
		PlatformEmail:         testEmail,
		PlatformAccessToken:   "bc-token",
		CRMAccessToken:        "crm-access",
		BillingSubscriptionID: "sub_1",
		LastSyncTimestamp:     &synced,
	})
	require.NoError(t, err)

	summary, err := h.svc.Status(ctx, testStoreHash)
	require.NoError(t, err)
	require.Equal(t, StateSubscribedCancelling, summary.State)
	require.Equal(t, "Cancels On: 2024-06-11", summary.NextCharge)
	require.Equal(t, 10, summary.DaysLeft)
	require.Equal(t, "Days Left In Subscription: 10", summary.DaysLeftText)
	require.Equal(t, testNow.Add(-time.Hour).Format(time.RFC850), summary.LastSync)
	require.Empty(t, summary.Price)
}

func TestStatusWithoutSubscription(t *testing.T) {
	tests := []struct {
		name      string
		crmLinked bool
		storedID  string
		want      State
	}{
		{name: "no crm", want: StateInstalledNoCRM},
		{name: "crm linked", crmLinked: true, want: StateCRMLinkedNoSubscription},
		{name: "stored id unknown to provider", crmLinked: true, storedID: "sub_gone", want: StateCRMLinkedNoSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.installed(t, tt.crmLinked)
			if tt.storedID != "" {
				_, err := h.tenants.Update(context.Background(), testStoreHash, func(t *tenants.Tenant) error {
					t.BillingSubscriptionID = tt.storedID
					return nil
				})
				require.NoError(t, err)
			}

			summary, err := h.svc.Status(context.Background(), testStoreHash)
			require.NoError(t, err)
			require.Equal(t, tt.want, summary.State)
			require.Empty(t, summary.SubscriptionID)
			require.Zero(t, summary.DaysLeft)
			require.Equal(t, "Never", summary.LastSync)
		})
	}
}

func TestStatusUnknownStore(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Status(context.Background(), testStoreHash)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestDaysBetween(t *testing.T) {
	require.Zero(t, daysBetween(testNow, testNow.Add(-time.Hour)))
	require.Zero(t, daysBetween(testNow, testNow.Add(23*time.Hour)))
	require.Equal(t, 1, daysBetween(testNow, testNow.Add(25*time.Hour)))
}
