package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
)

// State is the provisioning stage of a tenant, derived from its record and subscription.
type State string

const (
	StateInstalledNoCRM          State = "Installed-NoCRM"
	StateCRMLinkedNoSubscription State = "CRM-Linked-NoSubscription"
	StateSubscribedActive        State = "Subscribed-Active"
	StateSubscribedCancelling    State = "Subscribed-Cancelling"
	StateSubscribedCancelled     State = "Subscribed-Cancelled"
)

// DeriveState infers the stage of tenant. sub may be nil when no subscription is known.
func DeriveState(tenant tenants.Tenant, sub *chargebee.Subscription, now time.Time) State {
	if !tenant.CRMLinked() {
		return StateInstalledNoCRM
	}
	if sub == nil {
		return StateCRMLinkedNoSubscription
	}
	switch {
	case sub.Cancelled():
		return StateSubscribedCancelled
	case sub.Status == chargebee.StatusNonRenewing:
		return StateSubscribedCancelling
	case sub.CancelledAt != nil && sub.CancelledAt.After(now):
		return StateSubscribedCancelling
	default:
		return StateSubscribedActive
	}
}

// ProvisionResult details one provisioning check.
type ProvisionResult struct {
	Subscription      *chargebee.Subscription
	SubscriptionFound bool
	// WebhooksSynced is false when the platform was unreachable; the next callback retries.
	WebhooksSynced bool
	// Provisioned is SubscriptionFound && WebhooksSynced.
	Provisioned bool
}

// CheckAndProvisionSubscription reports whether the store is provisioned: a subscription
// exists for it and webhook state matches that subscription. False with a nil error means the
// user must go through checkout, or that webhook sync is pending.
func (s *Service) CheckAndProvisionSubscription(ctx context.Context, storeHash string) (bool, error) {
	result, err := s.Provision(ctx, storeHash)
	if err != nil {
		return false, err
	}
	return result.Provisioned, nil
}

// Provision looks up the store's subscription by the installer's email, records its id the
// first time, and activates or suspends webhooks according to its status. It never creates
// a subscription, so it is safe to call on every callback.
func (s *Service) Provision(ctx context.Context, storeHash string) (ProvisionResult, error) {
	tenant, err := s.loadTenant(ctx, storeHash)
	if err != nil {
		return ProvisionResult{}, err
	}
	log := s.log(ctx, storeHash)

	sub, err := s.resolveSubscription(ctx, tenant)
	if err != nil {
		return ProvisionResult{}, err
	}
	if sub == nil {
		log.Info("no subscription found for store")
		return ProvisionResult{}, nil
	}

	if !tenant.HasSubscription() {
		tenant, err = s.recordSubscription(ctx, storeHash, sub.ID)
		if err != nil {
			return ProvisionResult{}, err
		}
	}
	s.ensureStoreHashStamp(ctx, tenant, *sub)

	synced, err := s.syncWebhooks(ctx, tenant, *sub)
	if err != nil {
		return ProvisionResult{}, err
	}

	return ProvisionResult{
		Subscription:      sub,
		SubscriptionFound: true,
		WebhooksSynced:    synced,
		Provisioned:       synced,
	}, nil
}

// resolveSubscription finds the subscription that governs tenant. The email lookup is
// primary; a stored id that differs from it is kept and wins, and is also the fallback
// when the email lookup finds nothing.
func (s *Service) resolveSubscription(ctx context.Context, tenant tenants.Tenant) (*chargebee.Subscription, error) {
	log := s.log(ctx, tenant.StoreHash)

	byEmail, err := s.billing.FindSubscriptionByEmail(ctx, tenant.PlatformEmail)
	if err != nil {
		return nil, fmt.Errorf("find subscription for %s: %w", tenant.StoreHash, err)
	}

	if !tenant.HasSubscription() || (byEmail != nil && byEmail.ID == tenant.BillingSubscriptionID) {
		return byEmail, nil
	}

	if byEmail != nil {
		log.Error("subscription found by email differs from stored subscription; keeping stored id",
			zap.String("stored_subscription_id", tenant.BillingSubscriptionID),
			zap.String("found_subscription_id", byEmail.ID),
		)
	}

	stored, err := s.billing.GetSubscriptionByID(ctx, tenant.BillingSubscriptionID)
	switch {
	case err == nil:
		return &stored, nil
	case errors.Is(err, chargebee.ErrSubscriptionNotFound):
		log.Warn("stored subscription no longer exists at provider",
			zap.String("stored_subscription_id", tenant.BillingSubscriptionID))
		return byEmail, nil
	default:
		return nil, fmt.Errorf("get stored subscription for %s: %w", tenant.StoreHash, err)
	}
}

// recordSubscription stores subscriptionID unless another id got there first.
func (s *Service) recordSubscription(ctx context.Context, storeHash, subscriptionID string) (tenants.Tenant, error) {
	log := s.log(ctx, storeHash)

	tenant, err := s.update(ctx, storeHash, func(t *tenants.Tenant) error {
		if t.BillingSubscriptionID == "" {
			t.BillingSubscriptionID = subscriptionID
		}
		return nil
	})
	if err != nil {
		return tenants.Tenant{}, fmt.Errorf("record subscription for %s: %w", storeHash, err)
	}
	if tenant.BillingSubscriptionID != subscriptionID {
		log.Error("subscription id recorded concurrently; keeping stored id",
			zap.String("stored_subscription_id", tenant.BillingSubscriptionID),
			zap.String("found_subscription_id", subscriptionID),
		)
		return tenant, nil
	}
	log.Info("subscription recorded", zap.String("subscription_id", subscriptionID))
	return tenant, nil
}

// ensureStoreHashStamp writes the store hash onto the tenant's own subscription whenever the
// provider copy lacks it or names another store, so billing events can be traced back to
// the tenant. A failed stamp is repaired by the next provisioning check.
func (s *Service) ensureStoreHashStamp(ctx context.Context, tenant tenants.Tenant, sub chargebee.Subscription) {
	if sub.ID == "" || sub.ID != tenant.BillingSubscriptionID {
		return
	}
	if sub.Metadata[MetadataStoreHash] == tenant.StoreHash {
		return
	}
	s.stampStoreHash(ctx, tenant.StoreHash, sub.ID)
}

// stampStoreHash is best effort. Failures are logged and provisioning continues.
func (s *Service) stampStoreHash(ctx context.Context, storeHash, subscriptionID string) {
	err := s.billing.AttachMetadata(ctx, subscriptionID, map[string]string{MetadataStoreHash: storeHash})
	if err == nil {
		s.log(ctx, storeHash).Info("store metadata attached to subscription", zap.String("subscription_id", subscriptionID))
		return
	}
	log := s.log(ctx, storeHash).With(zap.String("subscription_id", subscriptionID), zap.Error(err))
	if errors.Is(err, chargebee.ErrMetadataAnnotation) {
		log.Warn("attach store metadata to subscription failed; continuing")
		return
	}
	log.Error("attach store metadata to subscription failed unexpectedly; continuing")
}

// syncWebhooks suspends webhooks for cancelled subscriptions and activates them otherwise.
func (s *Service) syncWebhooks(ctx context.Context, tenant tenants.Tenant, sub chargebee.Subscription) (bool, error) {
	var (
		synced bool
		err    error
	)
	if sub.Cancelled() {
		synced, err = s.webhooks.Suspend(ctx, tenant)
	} else {
		synced, err = s.webhooks.EnsureRegisteredAndActive(ctx, tenant)
	}
	if err != nil {
		return false, fmt.Errorf("sync webhooks for %s: %w", tenant.StoreHash, err)
	}
	if !synced {
		s.log(ctx, tenant.StoreHash).Warn("webhook sync pending; will retry on next callback",
			zap.String("subscription_status", sub.Status))
	}
	return synced, nil
}
