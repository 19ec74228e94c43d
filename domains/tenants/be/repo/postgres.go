package repo

import (
	"context"
	"errors"

	"github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/persistence"
)

// PostgresRepository implements the tenant repository on top of persistence.TenantStore.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Get(ctx context.Context, key service.Key) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, key.StoreHash, key.PlatformUserID)
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) ListByStoreHash(ctx context.Context, storeHash string) ([]service.Tenant, error) {
	rows, err := r.store.ListByStoreHash(ctx, storeHash)
	if err != nil {
		return nil, err
	}
	out := make([]service.Tenant, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toServiceTenant(rec))
	}
	return out, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Create(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Save(ctx context.Context, t service.Tenant, expectedVersion int64) (service.Tenant, error) {
	rec, err := r.store.Update(ctx, toRecord(t), expectedVersion)
	if err != nil {
		return service.Tenant{}, mapStoreError(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, key service.Key) error {
	return r.store.Delete(ctx, key.StoreHash, key.PlatformUserID)
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		StoreHash:             t.StoreHash,
		PlatformUserID:        t.PlatformUserID,
		PlatformEmail:         t.PlatformEmail,
		PlatformAccessToken:   t.PlatformAccessToken,
		PlatformScope:         t.PlatformScope,
		WebhooksRegistered:    t.WebhooksRegistered,
		CRMAccessToken:        t.CRMAccessToken,
		CRMRefreshToken:       t.CRMRefreshToken,
		CRMTokenExpiry:        t.CRMTokenExpiry,
		CRMHubID:              t.CRMHubID,
		CRMHubDomain:          t.CRMHubDomain,
		CRMAppID:              t.CRMAppID,
		CRMUser:               t.CRMUser,
		CRMUserID:             t.CRMUserID,
		CRMTokenType:          t.CRMTokenType,
		CRMScopes:             t.CRMScopes,
		CRMLinkedAt:           t.CRMLinkedAt,
		BillingSubscriptionID: t.BillingSubscriptionID,
		LastSyncTimestamp:     t.LastSyncTimestamp,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		Version:               t.Version,
	}
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		StoreHash:             rec.StoreHash,
		PlatformUserID:        rec.PlatformUserID,
		PlatformEmail:         rec.PlatformEmail,
		PlatformAccessToken:   rec.PlatformAccessToken,
		PlatformScope:         rec.PlatformScope,
		WebhooksRegistered:    rec.WebhooksRegistered,
		CRMAccessToken:        rec.CRMAccessToken,
		CRMRefreshToken:       rec.CRMRefreshToken,
		CRMTokenExpiry:        rec.CRMTokenExpiry,
		CRMHubID:              rec.CRMHubID,
		CRMHubDomain:          rec.CRMHubDomain,
		CRMAppID:              rec.CRMAppID,
		CRMUser:               rec.CRMUser,
		CRMUserID:             rec.CRMUserID,
		CRMTokenType:          rec.CRMTokenType,
		CRMScopes:             rec.CRMScopes,
		CRMLinkedAt:           rec.CRMLinkedAt,
		BillingSubscriptionID: rec.BillingSubscriptionID,
		LastSyncTimestamp:     rec.LastSyncTimestamp,
		CreatedAt:             rec.CreatedAt,
		UpdatedAt:             rec.UpdatedAt,
		Version:               rec.Version,
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrVersionConflict):
		return service.ErrConflict
	case errors.Is(err, persistence.ErrDuplicateKey):
		return service.ErrAlreadyExists
	default:
		return err
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
