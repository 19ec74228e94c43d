package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/hubspot"
)

// Paths of the pages the workflow sends users to.
const (
	PathInstallCallback = "/bigcommerce/callback"
	PathHome            = "/"
	PathGetStarted      = "/getstarted"
	PathPaymentSetup    = "/paymentsetup"
	PathPaymentSuccess  = "/paymentsuccess"
)

// SessionUser is what the browser session should remember after a platform callback.
type SessionUser struct {
	StoreHash      string
	Email          string
	PlatformUserID int64
}

// InstallInput carries the install callback parameters.
type InstallInput struct {
	Code    string
	Context string
	Scope   string
}

// Install completes the platform OAuth handshake, creates or refreshes the tenant record,
// and registers webhooks. The record is untouched when the exchange fails.
func (s *Service) Install(ctx context.Context, in InstallInput) (SessionUser, error) {
	storeHash := bigcommerce.StoreHashFromContext(in.Context)
	if strings.TrimSpace(in.Code) == "" || storeHash == "" {
		return SessionUser{}, fmt.Errorf("%w: code and context are required", ErrInvalidInput)
	}
	log := s.log(ctx, storeHash)

	token, err := s.platform.ExchangeCodeForToken(ctx, in.Code, in.Context, in.Scope, s.cfg.url(PathInstallCallback))
	if err != nil {
		return SessionUser{}, err
	}
	if token.StoreHash == "" {
		token.StoreHash = storeHash
	}
	if token.Scope == "" {
		token.Scope = in.Scope
	}

	tenant, err := s.upsertInstall(ctx, token)
	if err != nil {
		return SessionUser{}, err
	}
	log.Info("store installed", zap.Int64("platform_user_id", tenant.PlatformUserID))

	if _, err := s.webhooks.EnsureRegisteredAndActive(ctx, tenant); err != nil {
		return SessionUser{}, fmt.Errorf("register webhooks for %s: %w", storeHash, err)
	}

	return SessionUser{StoreHash: tenant.StoreHash, Email: token.Email, PlatformUserID: token.UserID}, nil
}

// upsertInstall creates the record of a new store or refreshes the credentials of an
// existing one. A concurrent duplicate callback that wins the create is treated as existing.
func (s *Service) upsertInstall(ctx context.Context, token bigcommerce.Token) (tenants.Tenant, error) {
	refresh := func(t *tenants.Tenant) error {
		t.PlatformAccessToken = token.AccessToken
		t.PlatformScope = token.Scope
		if t.PlatformEmail == "" {
			t.PlatformEmail = token.Email
		}
		return nil
	}

	tenant, err := s.tenants.Update(ctx, token.StoreHash, refresh)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, tenants.ErrNotFound) {
		return tenants.Tenant{}, fmt.Errorf("refresh tenant %s: %w", token.StoreHash, err)
	}

	tenant, err = s.tenants.Create(ctx, tenants.Tenant{
		StoreHash:           token.StoreHash,
		PlatformUserID:      token.UserID,
		PlatformEmail:       token.Email,
		PlatformAccessToken: token.AccessToken,
		PlatformScope:       token.Scope,
	})
	if errors.Is(err, tenants.ErrAlreadyExists) {
		tenant, err = s.tenants.Update(ctx, token.StoreHash, refresh)
	}
	if err != nil {
		return tenants.Tenant{}, fmt.Errorf("create tenant %s: %w", token.StoreHash, err)
	}
	return tenant, nil
}

// Next names the page a load callback leads to.
type Next string

const (
	NextHome       Next = "home"
	NextGetStarted Next = "get-started"
	NextCheckout   Next = "checkout"
)

// Path returns the page path for n.
func (n Next) Path() string {
	switch n {
	case NextGetStarted:
		return PathGetStarted
	case NextCheckout:
		return PathPaymentSetup
	default:
		return PathHome
	}
}

// LoadResult is the outcome of a load callback.
type LoadResult struct {
	User SessionUser
	Next Next
}

// Load handles the control panel re-entry callback: it verifies the signed payload,
// re-registers webhooks when they are not recorded as active, and advances provisioning.
func (s *Service) Load(ctx context.Context, signedPayload string) (LoadResult, error) {
	payload, ok := s.platform.VerifySignedPayload(signedPayload)
	if !ok || payload == nil {
		return LoadResult{}, ErrAuthVerificationFailed
	}

	tenant, err := s.loadTenant(ctx, payload.StoreHash)
	if err != nil {
		return LoadResult{}, err
	}

	// Linked stores have their webhooks settled by the provisioning check below.
	if !tenant.CRMLinked() && !tenant.WebhooksRegistered {
		if _, err := s.webhooks.EnsureRegisteredAndActive(ctx, tenant); err != nil {
			return LoadResult{}, fmt.Errorf("register webhooks for %s: %w", tenant.StoreHash, err)
		}
	}

	result := LoadResult{
		User: SessionUser{StoreHash: tenant.StoreHash, Email: payload.UserEmail, PlatformUserID: payload.UserID},
		Next: NextHome,
	}
	if !tenant.CRMLinked() {
		result.Next = NextGetStarted
		return result, nil
	}

	provision, err := s.Provision(ctx, tenant.StoreHash)
	if err != nil {
		return LoadResult{}, err
	}
	if !provision.SubscriptionFound {
		result.Next = NextCheckout
	}
	return result, nil
}

// LinkResult is the outcome of the CRM callback.
type LinkResult struct {
	Provisioned bool
}

// LinkCRM completes the CRM OAuth handshake for the session's store and runs the provisioning
// check. Both remote calls happen before the record is written.
func (s *Service) LinkCRM(ctx context.Context, storeHash, code string) (LinkResult, error) {
	if strings.TrimSpace(code) == "" {
		return LinkResult{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if _, err := s.loadTenant(ctx, storeHash); err != nil {
		return LinkResult{}, err
	}

	token, err := s.crm.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return LinkResult{}, err
	}
	info, err := s.crm.GetTokenInfo(ctx, token.AccessToken)
	if err != nil {
		return LinkResult{}, err
	}

	now := s.now()
	_, err = s.update(ctx, storeHash, func(t *tenants.Tenant) error {
		applyCRMToken(t, token, info, now)
		return nil
	})
	if err != nil {
		return LinkResult{}, fmt.Errorf("store crm link for %s: %w", storeHash, err)
	}
	s.log(ctx, storeHash).Info("crm linked", zap.String("hub_id", info.HubID))

	provisioned, err := s.CheckAndProvisionSubscription(ctx, storeHash)
	if err != nil {
		return LinkResult{}, err
	}
	return LinkResult{Provisioned: provisioned}, nil
}

func applyCRMToken(t *tenants.Tenant, token hubspot.TokenResponse, info hubspot.TokenInfo, now time.Time) {
	expiry := now.Add(time.Duration(token.ExpiresIn) * time.Second)
	linkedAt := now

	t.CRMAccessToken = token.AccessToken
	t.CRMRefreshToken = token.RefreshToken
	t.CRMTokenExpiry = &expiry
	t.CRMHubID = info.HubID
	t.CRMHubDomain = info.HubDomain
	t.CRMAppID = info.AppID
	t.CRMUser = info.User
	t.CRMUserID = info.UserID
	t.CRMTokenType = info.TokenType
	t.CRMScopes = append([]string(nil), info.Scopes...)
	t.CRMLinkedAt = &linkedAt
}

// Uninstall tears down the store's webhooks and deletes every record of the store.
func (s *Service) Uninstall(ctx context.Context, signedPayload string) error {
	payload, ok := s.platform.VerifySignedPayload(signedPayload)
	if !ok || payload == nil {
		return ErrAuthVerificationFailed
	}

	tenant, err := s.tenants.FindByStoreHash(ctx, payload.StoreHash)
	if errors.Is(err, tenants.ErrNotFound) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return err
	}
	log := s.log(ctx, tenant.StoreHash)

	if tenant.Installed() {
		deleted, err := s.webhooks.Teardown(ctx, tenant)
		if err != nil {
			// The store revoked our token on uninstall; the record goes regardless.
			log.Warn("webhook teardown failed", zap.Error(err))
		} else {
			log.Info("webhooks torn down", zap.Bool("deleted", deleted))
		}
	}

	records, err := s.tenants.ListByStoreHash(ctx, tenant.StoreHash)
	if err != nil {
		return fmt.Errorf("list tenant records %s: %w", tenant.StoreHash, err)
	}
	for _, record := range records {
		err := s.tenants.Delete(ctx, record.Key())
		if err != nil && !errors.Is(err, tenants.ErrNotFound) {
			return fmt.Errorf("delete tenant %s user %d: %w", record.StoreHash, record.PlatformUserID, err)
		}
	}
	log.Info("store uninstalled", zap.Int("records", len(records)))
	return nil
}

// CRMAuthorizeURL returns the CRM consent URL shown on the get started page.
func (s *Service) CRMAuthorizeURL() string {
	return s.crm.AuthorizeURL(hubspot.DefaultScopes)
}

// StoreAdminURL returns the control panel URL of a store.
func StoreAdminURL(storeHash string) string {
	return fmt.Sprintf("https://store-%s.mybigcommerce.com/manage/", storeHash)
}
