package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
	"github.com/zenGate-Global/hubmetrix/platform/go/eventdedupe"
	"github.com/zenGate-Global/hubmetrix/platform/go/hubspot"
	"github.com/zenGate-Global/hubmetrix/platform/go/logging"
)

// Errors returned by the provisioning workflow.
var (
	// ErrAuthVerificationFailed marks an untrusted or malformed signed payload.
	ErrAuthVerificationFailed = errors.New("signed payload verification failed")
	// ErrNotAuthenticated marks a request whose store cannot be resolved to an installed tenant.
	ErrNotAuthenticated = errors.New("store is not authenticated")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidEvent     = errors.New("invalid billing event")
	// ErrNoSubscription is returned by subscription admin operations for tenants that never subscribed.
	ErrNoSubscription = errors.New("tenant has no billing subscription")
)

// MetadataStoreHash is the subscription metadata key that names the owning store.
const MetadataStoreHash = "store_hash"

// PlatformClient is the e-commerce platform surface the workflow needs.
type PlatformClient interface {
	ExchangeCodeForToken(ctx context.Context, code, authContext, scope, redirectURI string) (bigcommerce.Token, error)
	VerifySignedPayload(payload string) (*bigcommerce.SignedPayload, bool)
	GetStoreInfo(ctx context.Context, storeHash, accessToken string) (bigcommerce.StoreInfo, error)
}

// CRMClient is the CRM OAuth surface.
type CRMClient interface {
	AuthorizeURL(scopes []string) string
	ExchangeCodeForToken(ctx context.Context, code string) (hubspot.TokenResponse, error)
	GetTokenInfo(ctx context.Context, accessToken string) (hubspot.TokenInfo, error)
}

// BillingClient is the subscription provider surface.
type BillingClient interface {
	FindSubscriptionByEmail(ctx context.Context, email string) (*chargebee.Subscription, error)
	GetSubscriptionByID(ctx context.Context, id string) (chargebee.Subscription, error)
	CreateHostedCheckoutPage(ctx context.Context, profile chargebee.BillingProfile, redirectURL string) (chargebee.HostedPage, error)
	ResolveHostedCheckoutPage(ctx context.Context, pageID string) (chargebee.Subscription, error)
	CancelSubscription(ctx context.Context, id string, endOfTerm bool) (chargebee.Subscription, error)
	ReactivateSubscription(ctx context.Context, id string) (chargebee.Subscription, error)
	AttachMetadata(ctx context.Context, id string, metadata map[string]string) error
}

// WebhookManager keeps platform event subscriptions in line with billing state.
type WebhookManager interface {
	EnsureRegisteredAndActive(ctx context.Context, tenant tenants.Tenant) (bool, error)
	Suspend(ctx context.Context, tenant tenants.Tenant) (bool, error)
	Teardown(ctx context.Context, tenant tenants.Tenant) (bool, error)
}

// TenantStore is the tenant record store.
type TenantStore interface {
	FindByStoreHash(ctx context.Context, storeHash string) (tenants.Tenant, error)
	ListByStoreHash(ctx context.Context, storeHash string) ([]tenants.Tenant, error)
	Create(ctx context.Context, t tenants.Tenant) (tenants.Tenant, error)
	Update(ctx context.Context, storeHash string, mutate tenants.Mutation) (tenants.Tenant, error)
	Delete(ctx context.Context, key tenants.Key) error
}

// EventValidator checks billing event payloads against their JSON schema.
type EventValidator interface {
	Validate(ctx context.Context, name string, payload []byte) error
}

// Config holds deployment values the workflow needs.
type Config struct {
	// AppURL is the public base URL of this service, including any stage prefix.
	AppURL string
	// PlanID is the billing plan offered at checkout.
	PlanID string
	// EventTTL bounds how long processed billing event ids are remembered.
	EventTTL time.Duration
}

func (c Config) url(path string) string {
	return strings.TrimRight(c.AppURL, "/") + path
}

// Dependencies groups the collaborators of Service.
type Dependencies struct {
	Tenants   TenantStore
	Platform  PlatformClient
	CRM       CRMClient
	Billing   BillingClient
	Webhooks  WebhookManager
	Dedupe    eventdedupe.Store
	Validator EventValidator
}

// Service orchestrates store installation, CRM linking and subscription provisioning.
type Service struct {
	tenants   TenantStore
	platform  PlatformClient
	crm       CRMClient
	billing   BillingClient
	webhooks  WebhookManager
	dedupe    eventdedupe.Store
	validator EventValidator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs a Service with required dependencies.
func New(deps Dependencies, cfg Config, logger *zap.Logger) *Service {
	if deps.Tenants == nil {
		panic("tenant store is required")
	}
	if deps.Platform == nil {
		panic("platform client is required")
	}
	if deps.CRM == nil {
		panic("crm client is required")
	}
	if deps.Billing == nil {
		panic("billing client is required")
	}
	if deps.Webhooks == nil {
		panic("webhook manager is required")
	}
	if deps.Dedupe == nil {
		panic("event dedupe store is required")
	}
	if deps.Validator == nil {
		panic("event validator is required")
	}
	if strings.TrimSpace(cfg.AppURL) == "" {
		panic("app url is required")
	}
	if cfg.PlanID == "" {
		cfg.PlanID = chargebee.DefaultPlanID
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = eventdedupe.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		tenants:   deps.Tenants,
		platform:  deps.Platform,
		crm:       deps.CRM,
		billing:   deps.Billing,
		webhooks:  deps.Webhooks,
		dedupe:    deps.Dedupe,
		validator: deps.Validator,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// loadTenant resolves an installed tenant; anything else is ErrNotAuthenticated.
func (s *Service) loadTenant(ctx context.Context, storeHash string) (tenants.Tenant, error) {
	tenant, err := s.tenants.FindByStoreHash(ctx, storeHash)
	if errors.Is(err, tenants.ErrNotFound) {
		return tenants.Tenant{}, ErrNotAuthenticated
	}
	if err != nil {
		return tenants.Tenant{}, err
	}
	if !tenant.Installed() {
		return tenants.Tenant{}, ErrNotAuthenticated
	}
	return tenant, nil
}

// update wraps TenantStore.Update, reporting a deleted tenant as ErrNotAuthenticated.
func (s *Service) update(ctx context.Context, storeHash string, mutate tenants.Mutation) (tenants.Tenant, error) {
	tenant, err := s.tenants.Update(ctx, storeHash, mutate)
	if errors.Is(err, tenants.ErrNotFound) {
		return tenants.Tenant{}, ErrNotAuthenticated
	}
	return tenant, err
}

func (s *Service) log(ctx context.Context, storeHash string) *zap.Logger {
	logger := logging.Ctx(ctx, s.logger)
	if storeHash != "" {
		logger = logger.With(zap.String("store_hash", storeHash))
	}
	return logger
}
