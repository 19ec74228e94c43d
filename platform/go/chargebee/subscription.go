package chargebee

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription statuses reported by Chargebee.
const (
	StatusFuture      = "future"
	StatusInTrial     = "in_trial"
	StatusActive      = "active"
	StatusNonRenewing = "non_renewing"
	StatusPaused      = "paused"
	StatusCancelled   = "cancelled"
)

// Subscription is a billing subscription. Optional instants are nil when absent.
type Subscription struct {
	ID               string
	CustomerID       string
	PlanID           string
	Status           string
	PlanUnitPrice    decimal.Decimal
	CurrencyCode     string
	CreatedAt        *time.Time
	StartedAt        *time.Time
	ActivatedAt      *time.Time
	CancelledAt      *time.Time
	NextBillingAt    *time.Time
	CurrentTermStart *time.Time
	CurrentTermEnd   *time.Time
	DueInvoicesCount int
	Metadata         map[string]string
}

// Cancelled reports whether the subscription has ended.
func (s Subscription) Cancelled() bool {
	return s.Status == StatusCancelled
}

type subscriptionWire struct {
	ID               string         `json:"id"`
	CustomerID       string         `json:"customer_id"`
	PlanID           string         `json:"plan_id"`
	Status           string         `json:"status"`
	PlanUnitPrice    int64          `json:"plan_unit_price"`
	CurrencyCode     string         `json:"currency_code"`
	CreatedAt        *int64         `json:"created_at"`
	StartedAt        *int64         `json:"started_at"`
	ActivatedAt      *int64         `json:"activated_at"`
	CancelledAt      *int64         `json:"cancelled_at"`
	NextBillingAt    *int64         `json:"next_billing_at"`
	CurrentTermStart *int64         `json:"current_term_start"`
	CurrentTermEnd   *int64         `json:"current_term_end"`
	DueInvoicesCount int            `json:"due_invoices_count"`
	MetaData         map[string]any `json:"meta_data"`
}

func (w subscriptionWire) toSubscription() Subscription {
	var meta map[string]string
	if len(w.MetaData) > 0 {
		meta = make(map[string]string, len(w.MetaData))
		for k, v := range w.MetaData {
			if s, ok := v.(string); ok {
				meta[k] = s
			}
		}
	}
	return Subscription{
		ID:               w.ID,
		CustomerID:       w.CustomerID,
		PlanID:           w.PlanID,
		Status:           w.Status,
		PlanUnitPrice:    decimal.New(w.PlanUnitPrice, -2),
		CurrencyCode:     w.CurrencyCode,
		CreatedAt:        unixPtr(w.CreatedAt),
		StartedAt:        unixPtr(w.StartedAt),
		ActivatedAt:      unixPtr(w.ActivatedAt),
		CancelledAt:      unixPtr(w.CancelledAt),
		NextBillingAt:    unixPtr(w.NextBillingAt),
		CurrentTermStart: unixPtr(w.CurrentTermStart),
		CurrentTermEnd:   unixPtr(w.CurrentTermEnd),
		DueInvoicesCount: w.DueInvoicesCount,
		Metadata:         meta,
	}
}

func unixPtr(v *int64) *time.Time {
	if v == nil || *v == 0 {
		return nil
	}
	t := time.Unix(*v, 0).UTC()
	return &t
}
