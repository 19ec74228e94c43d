package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
	"github.com/zenGate-Global/hubmetrix/platform/go/validation"
)

// EventSubscriptionCancelled is the billing event type that suspends a store.
const EventSubscriptionCancelled = "subscription_cancelled"

// BillingEvent is the subset of a billing provider notification the workflow reads.
type BillingEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	OccurredAt int64  `json:"occurred_at"`
	Content    struct {
		Subscription *struct {
			ID       string         `json:"id"`
			Status   string         `json:"status"`
			MetaData map[string]any `json:"meta_data"`
		} `json:"subscription"`
	} `json:"content"`
}

// EventOutcome says what happened to a billing event. Every outcome is acknowledged.
type EventOutcome string

const (
	OutcomeSuspended     EventOutcome = "suspended"
	OutcomeSuspendFailed EventOutcome = "suspend_pending"
	OutcomeDuplicate     EventOutcome = "duplicate"
	OutcomeIgnored       EventOutcome = "ignored"
	OutcomeUnknownTenant EventOutcome = "unknown_tenant"
)

// HandleSubscriptionEvent processes a billing notification. Only cancellations have an
// effect: the owning store's webhooks are suspended. The subscription id and tokens on the
// tenant record are left alone. Redelivered event ids are skipped.
func (s *Service) HandleSubscriptionEvent(ctx context.Context, payload []byte) (EventOutcome, error) {
	if err := s.validator.Validate(ctx, validation.BillingEventSchema, payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	var event BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	log := s.log(ctx, "").With(zap.String("event_id", event.ID), zap.String("event_type", event.EventType))

	if !isCancellation(event) {
		log.Debug("billing event ignored")
		return OutcomeIgnored, nil
	}

	first, err := s.dedupe.MarkProcessed(ctx, event.ID, s.cfg.EventTTL)
	if err != nil {
		// Suspend is idempotent.
		log.Warn("event dedupe unavailable; processing anyway", zap.Error(err))
		first = true
	}
	if !first {
		log.Info("duplicate billing event skipped")
		return OutcomeDuplicate, nil
	}

	outcome, err := s.suspendForEvent(ctx, event)
	if err != nil || outcome == OutcomeSuspendFailed {
		// Let a redelivery of this event try again.
		if releaseErr := s.dedupe.Release(ctx, event.ID); releaseErr != nil {
			log.Warn("release billing event failed", zap.Error(releaseErr))
		}
	}
	if err != nil {
		return "", err
	}
	log.Info("billing event processed", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func isCancellation(event BillingEvent) bool {
	if event.EventType == EventSubscriptionCancelled {
		return true
	}
	sub := event.Content.Subscription
	return sub != nil && sub.Status == chargebee.StatusCancelled
}

func (s *Service) suspendForEvent(ctx context.Context, event BillingEvent) (EventOutcome, error) {
	sub := event.Content.Subscription
	if sub == nil {
		return OutcomeIgnored, nil
	}

	storeHash := metadataString(sub.MetaData, MetadataStoreHash)
	if storeHash == "" {
		fetched, err := s.billing.GetSubscriptionByID(ctx, sub.ID)
		if isProviderMiss(err) {
			return OutcomeUnknownTenant, nil
		}
		if err != nil {
			return "", fmt.Errorf("get subscription %s: %w", sub.ID, err)
		}
		storeHash = fetched.Metadata[MetadataStoreHash]
	}
	if storeHash == "" {
		s.log(ctx, "").Warn("cancelled subscription carries no store hash", zap.String("subscription_id", sub.ID))
		return OutcomeUnknownTenant, nil
	}

	tenant, err := s.tenants.FindByStoreHash(ctx, storeHash)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return OutcomeUnknownTenant, nil
		}
		return "", fmt.Errorf("find tenant %s: %w", storeHash, err)
	}
	if !tenant.Installed() {
		return OutcomeUnknownTenant, nil
	}

	suspended, err := s.webhooks.Suspend(ctx, tenant)
	if err != nil {
		return "", fmt.Errorf("suspend webhooks for %s: %w", storeHash, err)
	}
	if !suspended {
		return OutcomeSuspendFailed, nil
	}
	return OutcomeSuspended, nil
}

func metadataString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return strings.TrimSpace(str)
}
