package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/address"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
)

// StartCheckout opens a hosted checkout page prefilled from the store profile. The caller
// keeps the page id in the session to complete the checkout later.
func (s *Service) StartCheckout(ctx context.Context, storeHash string) (chargebee.HostedPage, error) {
	tenant, err := s.loadTenant(ctx, storeHash)
	if err != nil {
		return chargebee.HostedPage{}, err
	}

	info, err := s.platform.GetStoreInfo(ctx, tenant.StoreHash, tenant.PlatformAccessToken)
	if err != nil {
		return chargebee.HostedPage{}, fmt.Errorf("get store info for %s: %w", storeHash, err)
	}

	profile := billingProfile(s.cfg.PlanID, tenant.PlatformEmail, info)
	page, err := s.billing.CreateHostedCheckoutPage(ctx, profile, s.cfg.url(PathPaymentSuccess))
	if err != nil {
		return chargebee.HostedPage{}, fmt.Errorf("create checkout page for %s: %w", storeHash, err)
	}
	s.log(ctx, storeHash).Info("checkout page created", zap.String("hosted_page_id", page.ID))
	return page, nil
}

// billingProfile assembles checkout details. The subscription is keyed to the installer's
// email so later provisioning checks find it.
func billingProfile(planID, email string, info bigcommerce.StoreInfo) chargebee.BillingProfile {
	if email == "" {
		email = info.AdminEmail
	}
	return chargebee.BillingProfile{
		PlanID:    planID,
		Email:     email,
		FirstName: info.FirstName,
		LastName:  info.LastName,
		Company:   info.Name,
		Phone:     info.Phone,
		Country:   info.CountryCode,
		Address:   address.Parse(info.Address),
	}
}

// CompleteCheckout resolves the hosted page the user paid on and records the resulting
// subscription the first time. Webhooks follow the stored subscription when one already
// exists, which is also the one returned.
func (s *Service) CompleteCheckout(ctx context.Context, storeHash, pageID string) (chargebee.Subscription, error) {
	if pageID == "" {
		return chargebee.Subscription{}, fmt.Errorf("%w: hosted page id is required", ErrInvalidInput)
	}
	tenant, err := s.loadTenant(ctx, storeHash)
	if err != nil {
		return chargebee.Subscription{}, err
	}

	sub, err := s.billing.ResolveHostedCheckoutPage(ctx, pageID)
	if err != nil {
		return chargebee.Subscription{}, fmt.Errorf("resolve checkout page for %s: %w", storeHash, err)
	}

	if !tenant.HasSubscription() {
		if tenant, err = s.recordSubscription(ctx, storeHash, sub.ID); err != nil {
			return chargebee.Subscription{}, err
		}
	}
	if tenant.BillingSubscriptionID != sub.ID {
		s.log(ctx, storeHash).Error("checkout produced a subscription different from the stored one; keeping stored id",
			zap.String("stored_subscription_id", tenant.BillingSubscriptionID),
			zap.String("found_subscription_id", sub.ID),
		)
		if sub, err = s.storedSubscription(ctx, tenant, sub); err != nil {
			return chargebee.Subscription{}, err
		}
	}
	s.ensureStoreHashStamp(ctx, tenant, sub)

	if _, err := s.syncWebhooks(ctx, tenant, sub); err != nil {
		return chargebee.Subscription{}, err
	}
	return sub, nil
}

// storedSubscription fetches the subscription tenant has on record. When the provider no
// longer knows it, fallback governs instead.
func (s *Service) storedSubscription(ctx context.Context, tenant tenants.Tenant, fallback chargebee.Subscription) (chargebee.Subscription, error) {
	stored, err := s.billing.GetSubscriptionByID(ctx, tenant.BillingSubscriptionID)
	switch {
	case err == nil:
		return stored, nil
	case isProviderMiss(err):
		s.log(ctx, tenant.StoreHash).Warn("stored subscription no longer exists at provider",
			zap.String("stored_subscription_id", tenant.BillingSubscriptionID))
		return fallback, nil
	default:
		return chargebee.Subscription{}, fmt.Errorf("get stored subscription for %s: %w", tenant.StoreHash, err)
	}
}

// CancelSubscription cancels the store's subscription at the end of its term, or at once,
// and suspends webhooks when the subscription has ended.
func (s *Service) CancelSubscription(ctx context.Context, storeHash string, endOfTerm bool) (chargebee.Subscription, error) {
	tenant, err := s.loadTenant(ctx, storeHash)
	if err != nil {
		return chargebee.Subscription{}, err
	}
	if !tenant.HasSubscription() {
		return chargebee.Subscription{}, ErrNoSubscription
	}

	sub, err := s.billing.CancelSubscription(ctx, tenant.BillingSubscriptionID, endOfTerm)
	if err != nil {
		return chargebee.Subscription{}, fmt.Errorf("cancel subscription for %s: %w", storeHash, err)
	}
	s.log(ctx, storeHash).Info("subscription cancelled",
		zap.String("subscription_id", sub.ID),
		zap.String("status", sub.Status),
		zap.Bool("end_of_term", endOfTerm),
	)

	if sub.Cancelled() {
		if _, err := s.syncWebhooks(ctx, tenant, sub); err != nil {
			return chargebee.Subscription{}, err
		}
	}
	return sub, nil
}

// ReactivateSubscription reactivates the store's subscription and its webhooks.
func (s *Service) ReactivateSubscription(ctx context.Context, storeHash string) (chargebee.Subscription, error) {
	tenant, err := s.loadTenant(ctx, storeHash)
	if err != nil {
		return chargebee.Subscription{}, err
	}
	if !tenant.HasSubscription() {
		return chargebee.Subscription{}, ErrNoSubscription
	}

	sub, err := s.billing.ReactivateSubscription(ctx, tenant.BillingSubscriptionID)
	if err != nil {
		return chargebee.Subscription{}, fmt.Errorf("reactivate subscription for %s: %w", storeHash, err)
	}
	s.log(ctx, storeHash).Info("subscription reactivated", zap.String("subscription_id", sub.ID))

	if _, err := s.syncWebhooks(ctx, tenant, sub); err != nil {
		return chargebee.Subscription{}, err
	}
	return sub, nil
}

// isProviderMiss reports whether err means the provider has no such subscription.
func isProviderMiss(err error) bool {
	return errors.Is(err, chargebee.ErrSubscriptionNotFound)
}
