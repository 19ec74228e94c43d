package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/logging"
)

// Event scopes every installed store subscribes to.
const (
	ScopeOrderCreated       = "store/order/created"
	ScopeOrderStatusUpdated = "store/order/statusUpdated"
	ScopeCustomerUpdated    = "store/customer/updated"
)

// HookClient abstracts the platform event subscription API.
type HookClient interface {
	ListHooks(ctx context.Context, storeHash, accessToken string) ([]bigcommerce.Hook, error)
	CreateHook(ctx context.Context, storeHash, accessToken, scope, destination string) (bigcommerce.Hook, error)
	SetHookActive(ctx context.Context, storeHash, accessToken string, hookID int64, active bool) error
	DeleteHook(ctx context.Context, storeHash, accessToken string, hookID int64) error
}

// TenantStore persists the webhooks_registered flag.
type TenantStore interface {
	Update(ctx context.Context, storeHash string, mutate tenants.Mutation) (tenants.Tenant, error)
}

// Config locates the ingestion endpoints hooks deliver to.
type Config struct {
	BackendURL  string
	StagePrefix string
}

// Target is one event subscription the manager maintains.
type Target struct {
	Scope       string
	Destination string
}

// Targets returns the fixed set of subscriptions for a deployment.
func (c Config) Targets() []Target {
	base := strings.TrimRight(c.BackendURL, "/") + c.StagePrefix
	orders := base + "/bc-ingest-orders"
	customers := base + "/bc-ingest-customers"
	return []Target{
		{Scope: ScopeOrderCreated, Destination: orders},
		{Scope: ScopeOrderStatusUpdated, Destination: orders},
		{Scope: ScopeCustomerUpdated, Destination: customers},
	}
}

// Service keeps a tenant's event subscriptions in line with its billing state.
//
// Gateway-class platform failures are absorbed: the operation reports false with a nil
// error and the persisted flag keeps its last known value, so the next callback retries.
// Any other failure is returned.
type Service struct {
	hooks   HookClient
	tenants TenantStore
	targets []Target
	logger  *zap.Logger
}

// New constructs a Service with required dependencies.
func New(hooks HookClient, store TenantStore, cfg Config, logger *zap.Logger) *Service {
	if hooks == nil {
		panic("hook client is required")
	}
	if store == nil {
		panic("tenant store is required")
	}
	if strings.TrimSpace(cfg.BackendURL) == "" {
		panic("backend url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{hooks: hooks, tenants: store, targets: cfg.Targets(), logger: logger}
}

// EnsureRegisteredAndActive reactivates every existing subscription, creates any missing
// target scope, and records webhooks_registered=true. Repeated calls never create more than
// one subscription per target scope.
func (s *Service) EnsureRegisteredAndActive(ctx context.Context, tenant tenants.Tenant) (bool, error) {
	log := s.log(ctx, tenant)

	existing, err := s.hooks.ListHooks(ctx, tenant.StoreHash, tenant.PlatformAccessToken)
	if err != nil {
		return s.absorb(log, "list hooks", err)
	}

	present := make(map[string]bool, len(existing))
	for _, hook := range existing {
		present[hook.Scope] = true
		if hook.IsActive {
			continue
		}
		if err := s.hooks.SetHookActive(ctx, tenant.StoreHash, tenant.PlatformAccessToken, hook.ID, true); err != nil {
			return s.absorb(log, "reactivate hook", err)
		}
		log.Debug("hook reactivated", zap.Int64("hook_id", hook.ID), zap.String("scope", hook.Scope))
	}

	for _, target := range s.targets {
		if present[target.Scope] {
			continue
		}
		if _, err := s.hooks.CreateHook(ctx, tenant.StoreHash, tenant.PlatformAccessToken, target.Scope, target.Destination); err != nil {
			return s.absorb(log, "create hook", err)
		}
		present[target.Scope] = true
	}

	if err := s.setRegistered(ctx, tenant.StoreHash, true); err != nil {
		return false, err
	}
	log.Info("webhooks registered and active", zap.Int("existing", len(existing)))
	return true, nil
}

// Suspend deactivates every subscription and records webhooks_registered=false.
func (s *Service) Suspend(ctx context.Context, tenant tenants.Tenant) (bool, error) {
	log := s.log(ctx, tenant)

	existing, err := s.hooks.ListHooks(ctx, tenant.StoreHash, tenant.PlatformAccessToken)
	if err != nil {
		return s.absorb(log, "list hooks", err)
	}

	for _, hook := range existing {
		if !hook.IsActive {
			continue
		}
		if err := s.hooks.SetHookActive(ctx, tenant.StoreHash, tenant.PlatformAccessToken, hook.ID, false); err != nil {
			return s.absorb(log, "deactivate hook", err)
		}
	}

	if err := s.setRegistered(ctx, tenant.StoreHash, false); err != nil {
		return false, err
	}
	log.Info("webhooks suspended", zap.Int("hooks", len(existing)))
	return true, nil
}

// Teardown deletes every subscription and reports whether any existed. The tenant record
// is left untouched because uninstall deletes it right after.
func (s *Service) Teardown(ctx context.Context, tenant tenants.Tenant) (bool, error) {
	log := s.log(ctx, tenant)

	existing, err := s.hooks.ListHooks(ctx, tenant.StoreHash, tenant.PlatformAccessToken)
	if err != nil {
		return false, fmt.Errorf("teardown hooks for %s: %w", tenant.StoreHash, err)
	}
	if len(existing) == 0 {
		return false, nil
	}

	for _, hook := range existing {
		if err := s.hooks.DeleteHook(ctx, tenant.StoreHash, tenant.PlatformAccessToken, hook.ID); err != nil {
			return false, fmt.Errorf("teardown hook %d for %s: %w", hook.ID, tenant.StoreHash, err)
		}
	}
	log.Info("webhooks deleted", zap.Int("hooks", len(existing)))
	return true, nil
}

func (s *Service) setRegistered(ctx context.Context, storeHash string, registered bool) error {
	_, err := s.tenants.Update(ctx, storeHash, func(t *tenants.Tenant) error {
		t.WebhooksRegistered = registered
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist webhooks_registered=%t for %s: %w", registered, storeHash, err)
	}
	return nil
}

func (s *Service) absorb(log *zap.Logger, op string, err error) (bool, error) {
	if errors.Is(err, bigcommerce.ErrTransientProvider) {
		log.Warn("platform unavailable; webhook state left unchanged", zap.String("op", op), zap.Error(err))
		return false, nil
	}
	return false, fmt.Errorf("%s: %w", op, err)
}

func (s *Service) log(ctx context.Context, tenant tenants.Tenant) *zap.Logger {
	return logging.Ctx(ctx, s.logger).With(zap.String("store_hash", tenant.StoreHash))
}
