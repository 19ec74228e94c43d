package chargebee

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zenGate-Global/hubmetrix/platform/go/address"
)

// HostedPage is a checkout page the user completes in the browser.
type HostedPage struct {
	ID    string
	URL   string
	State string
}

// BillingProfile prefills the hosted checkout.
type BillingProfile struct {
	PlanID    string
	Email     string
	FirstName string
	LastName  string
	Company   string
	Phone     string
	Country   string
	Address   address.Address
}

type subscriptionEnvelope struct {
	Subscription subscriptionWire `json:"subscription"`
}

type customerEnvelope struct {
	Customer struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"customer"`
}

type listCustomersResponse struct {
	List []customerEnvelope `json:"list"`
}

type listSubscriptionsResponse struct {
	List []subscriptionEnvelope `json:"list"`
}

type hostedPageWire struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	State   string `json:"state"`
	Content struct {
		Subscription *subscriptionWire `json:"subscription"`
	} `json:"content"`
}

type hostedPageEnvelope struct {
	HostedPage hostedPageWire `json:"hosted_page"`
}

// FindSubscriptionByEmail returns the most recent subscription of the first customer
// registered with email, or nil when there is none.
func (c *Client) FindSubscriptionByEmail(ctx context.Context, email string) (*Subscription, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}

	c.logger.Debug("looking up customer by email")

	var customers listCustomersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"email[is]": email, "limit": "1"}).
		SetResult(&customers).
		Get("/customers")
	if err := checkResponse("list customers", resp, err, nil); err != nil {
		c.logger.Error("customer lookup failed", zap.Error(err))
		return nil, err
	}
	if len(customers.List) == 0 {
		return nil, nil
	}

	var subs listSubscriptionsResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"customer_id[is]": customers.List[0].Customer.ID,
			"limit":           "1",
			"sort_by[desc]":   "created_at",
		}).
		SetResult(&subs).
		Get("/subscriptions")
	if err := checkResponse("list subscriptions", resp, err, nil); err != nil {
		c.logger.Error("subscription lookup failed", zap.Error(err))
		return nil, err
	}
	if len(subs.List) == 0 {
		return nil, nil
	}

	sub := subs.List[0].Subscription.toSubscription()
	return &sub, nil
}

// GetSubscriptionByID retrieves one subscription; a missing id fails with ErrSubscriptionNotFound.
func (c *Client) GetSubscriptionByID(ctx context.Context, id string) (Subscription, error) {
	if err := c.configured(); err != nil {
		return Subscription{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Subscription{}, ErrSubscriptionNotFound
	}

	var out subscriptionEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/subscriptions/{id}")
	if err := checkResponse("retrieve subscription", resp, err, ErrSubscriptionNotFound); err != nil {
		return Subscription{}, err
	}
	return out.Subscription.toSubscription(), nil
}

// CreateHostedCheckoutPage opens a new-subscription checkout for the profile.
func (c *Client) CreateHostedCheckoutPage(ctx context.Context, profile BillingProfile, redirectURL string) (HostedPage, error) {
	if err := c.configured(); err != nil {
		return HostedPage{}, err
	}
	planID := profile.PlanID
	if planID == "" {
		planID = DefaultPlanID
	}

	form := map[string]string{
		"subscription[plan_id]": planID,
		"customer[email]":       profile.Email,
		"redirect_url":          redirectURL,
		"embed":                 "true",
	}
	setIf(form, "customer[first_name]", profile.FirstName)
	setIf(form, "customer[last_name]", profile.LastName)
	setIf(form, "customer[company]", profile.Company)
	setIf(form, "customer[phone]", profile.Phone)
	setIf(form, "billing_address[first_name]", profile.FirstName)
	setIf(form, "billing_address[last_name]", profile.LastName)
	setIf(form, "billing_address[line1]", profile.Address.Line1)
	setIf(form, "billing_address[city]", profile.Address.City)
	setIf(form, "billing_address[state]", profile.Address.State)
	setIf(form, "billing_address[zip]", profile.Address.Zip)
	setIf(form, "billing_address[country]", profile.Country)

	var out hostedPageEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		Post("/hosted_pages/checkout_new")
	if err := checkResponse("checkout new", resp, err, nil); err != nil {
		c.logger.Error("hosted checkout creation failed", zap.Error(err))
		return HostedPage{}, err
	}

	c.logger.Info("hosted checkout created", zap.String("hosted_page_id", out.HostedPage.ID))
	return HostedPage{ID: out.HostedPage.ID, URL: out.HostedPage.URL, State: out.HostedPage.State}, nil
}

// ResolveHostedCheckoutPage returns the subscription created by a completed checkout.
func (c *Client) ResolveHostedCheckoutPage(ctx context.Context, pageID string) (Subscription, error) {
	if err := c.configured(); err != nil {
		return Subscription{}, err
	}

	var out hostedPageEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", pageID).
		SetResult(&out).
		Get("/hosted_pages/{id}")
	if err := checkResponse("retrieve hosted page", resp, err, ErrHostedPageIncomplete); err != nil {
		return Subscription{}, err
	}
	if out.HostedPage.State != "succeeded" || out.HostedPage.Content.Subscription == nil {
		return Subscription{}, fmt.Errorf("hosted page %s in state %q: %w", pageID, out.HostedPage.State, ErrHostedPageIncomplete)
	}
	return out.HostedPage.Content.Subscription.toSubscription(), nil
}

// CancelSubscription cancels immediately or at the end of the current term.
func (c *Client) CancelSubscription(ctx context.Context, id string, endOfTerm bool) (Subscription, error) {
	if err := c.configured(); err != nil {
		return Subscription{}, err
	}

	var out subscriptionEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetFormData(map[string]string{"end_of_term": fmt.Sprintf("%t", endOfTerm)}).
		SetResult(&out).
		Post("/subscriptions/{id}/cancel")
	if err := checkResponse("cancel subscription", resp, err, ErrSubscriptionNotFound); err != nil {
		c.logger.Error("cancel subscription failed", zap.String("subscription_id", id), zap.Error(err))
		return Subscription{}, err
	}
	c.logger.Info("subscription cancelled", zap.String("subscription_id", id), zap.Bool("end_of_term", endOfTerm))
	return out.Subscription.toSubscription(), nil
}

// ReactivateSubscription reactivates a cancelled subscription.
func (c *Client) ReactivateSubscription(ctx context.Context, id string) (Subscription, error) {
	if err := c.configured(); err != nil {
		return Subscription{}, err
	}

	var out subscriptionEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Post("/subscriptions/{id}/reactivate")
	if err := checkResponse("reactivate subscription", resp, err, ErrSubscriptionNotFound); err != nil {
		c.logger.Error("reactivate subscription failed", zap.String("subscription_id", id), zap.Error(err))
		return Subscription{}, err
	}
	c.logger.Info("subscription reactivated", zap.String("subscription_id", id))
	return out.Subscription.toSubscription(), nil
}

// AttachMetadata merges metadata onto the subscription. Failures wrap ErrMetadataAnnotation.
func (c *Client) AttachMetadata(ctx context.Context, id string, metadata map[string]string) error {
	if err := c.configured(); err != nil {
		return err
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrMetadataAnnotation, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetFormData(map[string]string{"meta_data": string(encoded)}).
		Post("/subscriptions/{id}")
	if err := checkResponse("update subscription metadata", resp, err, nil); err != nil {
		c.logger.Warn("metadata annotation failed", zap.String("subscription_id", id), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrMetadataAnnotation, err)
	}
	return nil
}

func setIf(form map[string]string, key, value string) {
	if value != "" {
		form[key] = value
	}
}
