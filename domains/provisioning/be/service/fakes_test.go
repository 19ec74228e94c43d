package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	tenantsrepo "github.com/zenGate-Global/hubmetrix/domains/tenants/be/repo"
	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	webhooks "github.com/zenGate-Global/hubmetrix/domains/webhooks/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
	"github.com/zenGate-Global/hubmetrix/platform/go/eventdedupe"
	"github.com/zenGate-Global/hubmetrix/platform/go/hubspot"
	"github.com/zenGate-Global/hubmetrix/platform/go/validation"
)

const (
	testAppURL    = "https://app.example.com/dev"
	testStoreHash = "abc123"
	testEmail     = "owner@example.com"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakePlatform is the e-commerce platform: OAuth, signed payloads, store info and hooks.
type fakePlatform struct {
	mu     sync.Mutex
	nextID int64
	hooks  map[int64]bigcommerce.Hook
	failOn map[string]error

	token       bigcommerce.Token
	exchangeErr error
	exchanges   []string
	payloads    map[string]*bigcommerce.SignedPayload
	storeInfo   bigcommerce.StoreInfo
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		hooks:    make(map[int64]bigcommerce.Hook),
		failOn:   make(map[string]error),
		payloads: make(map[string]*bigcommerce.SignedPayload),
	}
}

func (f *fakePlatform) ExchangeCodeForToken(ctx context.Context, code, authContext, scope, redirectURI string) (bigcommerce.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, redirectURI)
	if f.exchangeErr != nil {
		return bigcommerce.Token{}, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakePlatform) VerifySignedPayload(payload string) (*bigcommerce.SignedPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payloads[payload]
	if !ok {
		return nil, false
	}
	return p, true
}

func (f *fakePlatform) GetStoreInfo(ctx context.Context, storeHash, accessToken string) (bigcommerce.StoreInfo, error) {
	if err := f.failOn["store"]; err != nil {
		return bigcommerce.StoreInfo{}, err
	}
	return f.storeInfo, nil
}

func (f *fakePlatform) ListHooks(ctx context.Context, storeHash, accessToken string) ([]bigcommerce.Hook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["list"]; err != nil {
		return nil, err
	}
	out := make([]bigcommerce.Hook, 0, len(f.hooks))
	for _, h := range f.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePlatform) CreateHook(ctx context.Context, storeHash, accessToken, scope, destination string) (bigcommerce.Hook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["create"]; err != nil {
		return bigcommerce.Hook{}, err
	}
	f.nextID++
	h := bigcommerce.Hook{ID: f.nextID, Scope: scope, Destination: destination, IsActive: true}
	f.hooks[h.ID] = h
	return h, nil
}

func (f *fakePlatform) SetHookActive(ctx context.Context, storeHash, accessToken string, hookID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["update"]; err != nil {
		return err
	}
	h, ok := f.hooks[hookID]
	if !ok {
		return fmt.Errorf("hook %d: %w", hookID, bigcommerce.ErrRequest)
	}
	h.IsActive = active
	f.hooks[hookID] = h
	return nil
}

func (f *fakePlatform) DeleteHook(ctx context.Context, storeHash, accessToken string, hookID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["delete"]; err != nil {
		return err
	}
	delete(f.hooks, hookID)
	return nil
}

// hookCounts returns how many hooks exist and how many are active.
func (f *fakePlatform) hookCounts() (total, active int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.hooks {
		total++
		if h.IsActive {
			active++
		}
	}
	return total, active
}

type fakeCRM struct {
	token       hubspot.TokenResponse
	info        hubspot.TokenInfo
	exchangeErr error
	infoErr     error
}

func (f *fakeCRM) AuthorizeURL(scopes []string) string {
	return fmt.Sprintf("https://crm.example.com/authorize?scopes=%d", len(scopes))
}

func (f *fakeCRM) ExchangeCodeForToken(ctx context.Context, code string) (hubspot.TokenResponse, error) {
	if f.exchangeErr != nil {
		return hubspot.TokenResponse{}, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeCRM) GetTokenInfo(ctx context.Context, accessToken string) (hubspot.TokenInfo, error) {
	if f.infoErr != nil {
		return hubspot.TokenInfo{}, f.infoErr
	}
	return f.info, nil
}

// fakeBilling keeps subscriptions in memory, indexed by customer email and by id.
type fakeBilling struct {
	mu        sync.Mutex
	byEmail   map[string]string
	byID      map[string]chargebee.Subscription
	pages     map[string]string
	findErr   error
	getErr    error
	attachErr error

	attached     map[string]map[string]string
	attachCalls  int
	profiles     []chargebee.BillingProfile
	redirects    []string
	pageCreates  int
	cancelCalls  int
	reactivateOK int
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		byEmail:  make(map[string]string),
		byID:     make(map[string]chargebee.Subscription),
		pages:    make(map[string]string),
		attached: make(map[string]map[string]string),
	}
}

func (f *fakeBilling) add(email string, sub chargebee.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email != "" {
		f.byEmail[email] = sub.ID
	}
	f.byID[sub.ID] = sub
}

func (f *fakeBilling) FindSubscriptionByEmail(ctx context.Context, email string) (*chargebee.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	id, ok := f.byEmail[email]
	if !ok {
		return nil, nil
	}
	sub := f.byID[id]
	return &sub, nil
}

func (f *fakeBilling) GetSubscriptionByID(ctx context.Context, id string) (chargebee.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return chargebee.Subscription{}, f.getErr
	}
	sub, ok := f.byID[id]
	if !ok {
		return chargebee.Subscription{}, fmt.Errorf("subscription %s: %w", id, chargebee.ErrSubscriptionNotFound)
	}
	return sub, nil
}

func (f *fakeBilling) CreateHostedCheckoutPage(ctx context.Context, profile chargebee.BillingProfile, redirectURL string) (chargebee.HostedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCreates++
	f.profiles = append(f.profiles, profile)
	f.redirects = append(f.redirects, redirectURL)
	id := fmt.Sprintf("hp_%d", f.pageCreates)
	return chargebee.HostedPage{ID: id, URL: "https://billing.example.com/pages/" + id, State: "created"}, nil
}

// completePage simulates the user paying on page id, producing sub.
func (f *fakeBilling) completePage(pageID, email string, sub chargebee.Subscription) {
	f.add(email, sub)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[pageID] = sub.ID
}

func (f *fakeBilling) ResolveHostedCheckoutPage(ctx context.Context, pageID string) (chargebee.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.pages[pageID]
	if !ok {
		return chargebee.Subscription{}, fmt.Errorf("page %s: %w", pageID, chargebee.ErrHostedPageIncomplete)
	}
	return f.byID[id], nil
}

func (f *fakeBilling) CancelSubscription(ctx context.Context, id string, endOfTerm bool) (chargebee.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	sub, ok := f.byID[id]
	if !ok {
		return chargebee.Subscription{}, chargebee.ErrSubscriptionNotFound
	}
	if endOfTerm {
		sub.Status = chargebee.StatusNonRenewing
		sub.CancelledAt = sub.CurrentTermEnd
	} else {
		sub.Status = chargebee.StatusCancelled
		now := testNow
		sub.CancelledAt = &now
	}
	f.byID[id] = sub
	return sub, nil
}

func (f *fakeBilling) ReactivateSubscription(ctx context.Context, id string) (chargebee.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.byID[id]
	if !ok {
		return chargebee.Subscription{}, chargebee.ErrSubscriptionNotFound
	}
	f.reactivateOK++
	sub.Status = chargebee.StatusActive
	sub.CancelledAt = nil
	f.byID[id] = sub
	return sub, nil
}

func (f *fakeBilling) AttachMetadata(ctx context.Context, id string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachCalls++
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[id] = metadata
	sub := f.byID[id]
	sub.Metadata = metadata
	f.byID[id] = sub
	return nil
}

type harness struct {
	svc      *Service
	tenants  *tenants.Service
	platform *fakePlatform
	crm      *fakeCRM
	billing  *fakeBilling
	dedupe   *eventdedupe.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tenantSvc := tenants.New(tenantsrepo.NewMemoryRepository())
	platform := newFakePlatform()
	crm := &fakeCRM{
		token: hubspot.TokenResponse{AccessToken: "crm-access", RefreshToken: "crm-refresh", ExpiresIn: 21600},
		info: hubspot.TokenInfo{
			AppID:     "55",
			HubID:     "777",
			HubDomain: "acme.hubspot.com",
			TokenType: "access",
			User:      testEmail,
			UserID:    "9001",
			Scopes:    []string{"contacts", "automation", "timeline"},
		},
	}
	billing := newFakeBilling()
	dedupe := eventdedupe.NewMemoryStore()
	hooks := webhooks.New(platform, tenantSvc, webhooks.Config{BackendURL: "https://ingest.example.com", StagePrefix: "/dev"}, logger)

	svc := New(Dependencies{
		Tenants:   tenantSvc,
		Platform:  platform,
		CRM:       crm,
		Billing:   billing,
		Webhooks:  hooks,
		Dedupe:    dedupe,
		Validator: validation.NewSchemaValidator(),
	}, Config{AppURL: testAppURL}, logger)
	svc.now = func() time.Time { return testNow }

	return &harness{svc: svc, tenants: tenantSvc, platform: platform, crm: crm, billing: billing, dedupe: dedupe}
}

// installed seeds an installed tenant, optionally CRM linked.
func (h *harness) installed(t *testing.T, crmLinked bool) tenants.Tenant {
	t.Helper()
	ctx := context.Background()
	tenant, err := h.tenants.Create(ctx, tenants.Tenant{
		StoreHash:           testStoreHash,
		PlatformUserID:      42,
		PlatformEmail:       testEmail,
		PlatformAccessToken: "bc-token",
		PlatformScope:       "store_v2_orders",
	})
	require.NoError(t, err)
	if !crmLinked {
		return tenant
	}
	tenant, err = h.tenants.Update(ctx, testStoreHash, func(t *tenants.Tenant) error {
		t.CRMAccessToken = "crm-access"
		return nil
	})
	require.NoError(t, err)
	return tenant
}

func (h *harness) tenant(t *testing.T) tenants.Tenant {
	t.Helper()
	tenant, err := h.tenants.FindByStoreHash(context.Background(), testStoreHash)
	require.NoError(t, err)
	return tenant
}

func activeSubscription(id string) chargebee.Subscription {
	next := testNow.Add(30 * 24 * time.Hour)
	termStart := testNow.Add(-24 * time.Hour)
	return chargebee.Subscription{
		ID:               id,
		CustomerID:       "cus_1",
		PlanID:           chargebee.DefaultPlanID,
		Status:           chargebee.StatusActive,
		CurrencyCode:     "USD",
		NextBillingAt:    &next,
		CurrentTermStart: &termStart,
		CurrentTermEnd:   &next,
	}
}

func cancelledSubscription(id string) chargebee.Subscription {
	sub := activeSubscription(id)
	cancelled := testNow.Add(-time.Hour)
	sub.Status = chargebee.StatusCancelled
	sub.CancelledAt = &cancelled
	sub.NextBillingAt = nil
	return sub
}
