package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
)

const (
	chargeDateLayout = time.RFC850
	cancelDateLayout = "2006-01-02"
)

// StatusSummary is what the home page shows about a store.
type StatusSummary struct {
	StoreHash         string `json:"store_hash"`
	State             State  `json:"state"`
	SubscriptionID    string `json:"subscription_id,omitempty"`
	SubscriptionState string `json:"subscription_status,omitempty"`
	Price             string `json:"price,omitempty"`
	NextCharge        string `json:"next_charge,omitempty"`
	NextChargeExplain string `json:"next_charge_explain,omitempty"`
	DaysLeft          int    `json:"days_left"`
	DaysLeftText      string `json:"days_left_text,omitempty"`
	LastSync          string `json:"last_sync"`
	WebhooksActive    bool   `json:"webhooks_active"`
}

// Status summarises the store's provisioning state and billing dates.
func (s *Service) Status(ctx context.Context, storeHash string) (StatusSummary, error) {
	tenant, err := s.loadTenant(ctx, storeHash)
	if err != nil {
		return StatusSummary{}, err
	}

	var sub *chargebee.Subscription
	if tenant.HasSubscription() {
		fetched, err := s.billing.GetSubscriptionByID(ctx, tenant.BillingSubscriptionID)
		switch {
		case err == nil:
			sub = &fetched
		case isProviderMiss(err):
		default:
			return StatusSummary{}, fmt.Errorf("get subscription for %s: %w", storeHash, err)
		}
	}

	now := s.now()
	summary := StatusSummary{
		StoreHash:      tenant.StoreHash,
		State:          DeriveState(tenant, sub, now),
		LastSync:       "Never",
		WebhooksActive: tenant.WebhooksRegistered,
	}
	if tenant.LastSyncTimestamp != nil {
		summary.LastSync = tenant.LastSyncTimestamp.UTC().Format(chargeDateLayout)
	}
	if sub == nil {
		return summary, nil
	}

	summary.SubscriptionID = sub.ID
	summary.SubscriptionState = sub.Status
	if !sub.PlanUnitPrice.IsZero() {
		summary.Price = sub.PlanUnitPrice.StringFixed(2) + " " + sub.CurrencyCode
	}
	fillChargeDates(&summary, *sub, now)
	return summary, nil
}

// fillChargeDates describes the next billing instant, or the cancellation instant when one is
// scheduled, and the whole days left until it.
func fillChargeDates(summary *StatusSummary, sub chargebee.Subscription, now time.Time) {
	var until *time.Time
	switch {
	case sub.CancelledAt != nil:
		until = sub.CancelledAt
		summary.NextCharge = "Cancels On: " + sub.CancelledAt.UTC().Format(cancelDateLayout)
		summary.NextChargeExplain = "Your subscription ends on this date and will not be charged again."
	case sub.NextBillingAt != nil:
		until = sub.NextBillingAt
		summary.NextCharge = sub.NextBillingAt.UTC().Format(chargeDateLayout)
		summary.NextChargeExplain = "Your subscription renews and is charged on this date."
	default:
		summary.NextChargeExplain = "No upcoming charge is scheduled."
		return
	}

	summary.DaysLeft = daysBetween(now, *until)
	summary.DaysLeftText = fmt.Sprintf("Days Left In Subscription: %d", summary.DaysLeft)
}

func daysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(math.Floor(to.Sub(from).Hours() / 24))
}
