package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantsTable is the unqualified tenant linkage table; it resolves through search_path.
const TenantsTable = "tenants"

// Errors surfaced by TenantStore.
var (
	ErrNotFound        = errors.New("tenant not found")
	ErrVersionConflict = errors.New("tenant version conflict")
	ErrDuplicateKey    = errors.New("tenant key already exists")
)

const tenantColumns = `store_hash, platform_user_id, platform_email, platform_access_token, platform_scope,
        webhooks_registered, crm_access_token, crm_refresh_token, crm_token_expiry, crm_hub_id,
        crm_hub_domain, crm_app_id, crm_user, crm_user_id, crm_token_type, crm_scopes, crm_linked_at,
        billing_subscription_id, last_sync_timestamp, created_at, updated_at, version`

// TenantRecord represents a tenant linkage row.
type TenantRecord struct {
	StoreHash             string     `db:"store_hash"`
	PlatformUserID        int64      `db:"platform_user_id"`
	PlatformEmail         string     `db:"platform_email"`
	PlatformAccessToken   string     `db:"platform_access_token"`
	PlatformScope         string     `db:"platform_scope"`
	WebhooksRegistered    bool       `db:"webhooks_registered"`
	CRMAccessToken        string     `db:"crm_access_token"`
	CRMRefreshToken       string     `db:"crm_refresh_token"`
	CRMTokenExpiry        *time.Time `db:"crm_token_expiry"`
	CRMHubID              string     `db:"crm_hub_id"`
	CRMHubDomain          string     `db:"crm_hub_domain"`
	CRMAppID              string     `db:"crm_app_id"`
	CRMUser               string     `db:"crm_user"`
	CRMUserID             string     `db:"crm_user_id"`
	CRMTokenType          string     `db:"crm_token_type"`
	CRMScopes             []string   `db:"crm_scopes"`
	CRMLinkedAt           *time.Time `db:"crm_linked_at"`
	BillingSubscriptionID string     `db:"billing_subscription_id"`
	LastSyncTimestamp     *time.Time `db:"last_sync_timestamp"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
	Version               int64      `db:"version"`
}

// TenantStore provides access to the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes BootstrapSchema already created the table.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

// Create inserts a new row. The caller supplies version and timestamps.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.StoreHash == "" {
		return TenantRecord{}, errors.New("store hash is required")
	}
	if rec.CRMScopes == nil {
		rec.CRMScopes = []string{}
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
        RETURNING %s
    `, TenantsTable, tenantColumns, tenantColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.StoreHash, rec.PlatformUserID, rec.PlatformEmail, rec.PlatformAccessToken, rec.PlatformScope,
		rec.WebhooksRegistered, rec.CRMAccessToken, rec.CRMRefreshToken, rec.CRMTokenExpiry, rec.CRMHubID,
		rec.CRMHubDomain, rec.CRMAppID, rec.CRMUser, rec.CRMUserID, rec.CRMTokenType, rec.CRMScopes, rec.CRMLinkedAt,
		rec.BillingSubscriptionID, rec.LastSyncTimestamp, rec.CreatedAt, rec.UpdatedAt, rec.Version,
	)

	out, err := scanTenantRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return TenantRecord{}, ErrDuplicateKey
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// Update overwrites the mutable columns when the stored version equals expectedVersion,
// and bumps the version by one. last_sync_timestamp is written only by the sync worker and
// is left as stored.
func (s *TenantStore) Update(ctx context.Context, rec TenantRecord, expectedVersion int64) (TenantRecord, error) {
	if rec.CRMScopes == nil {
		rec.CRMScopes = []string{}
	}

	query := fmt.Sprintf(`
        UPDATE %s SET
            platform_email = $3, platform_access_token = $4, platform_scope = $5,
            webhooks_registered = $6, crm_access_token = $7, crm_refresh_token = $8,
            crm_token_expiry = $9, crm_hub_id = $10, crm_hub_domain = $11, crm_app_id = $12,
            crm_user = $13, crm_user_id = $14, crm_token_type = $15, crm_scopes = $16,
            crm_linked_at = $17, billing_subscription_id = $18,
            updated_at = $19, version = version + 1
        WHERE store_hash = $1 AND platform_user_id = $2 AND version = $20
        RETURNING %s
    `, TenantsTable, tenantColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.StoreHash, rec.PlatformUserID, rec.PlatformEmail, rec.PlatformAccessToken, rec.PlatformScope,
		rec.WebhooksRegistered, rec.CRMAccessToken, rec.CRMRefreshToken, rec.CRMTokenExpiry, rec.CRMHubID,
		rec.CRMHubDomain, rec.CRMAppID, rec.CRMUser, rec.CRMUserID, rec.CRMTokenType, rec.CRMScopes,
		rec.CRMLinkedAt, rec.BillingSubscriptionID, rec.UpdatedAt, expectedVersion,
	)

	out, err := scanTenantRecord(row)
	if errors.Is(err, ErrNotFound) {
		// Nothing matched: either the row is gone or someone else bumped the version.
		if _, getErr := s.Get(ctx, rec.StoreHash, rec.PlatformUserID); getErr == nil {
			return TenantRecord{}, ErrVersionConflict
		}
		return TenantRecord{}, ErrNotFound
	}
	return out, err
}

// Get fetches one row by its composite key.
func (s *TenantStore) Get(ctx context.Context, storeHash string, platformUserID int64) (TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE store_hash = $1 AND platform_user_id = $2`, tenantColumns, TenantsTable)
	return scanTenantRecord(s.pool.QueryRow(ctx, query, storeHash, platformUserID))
}

// ListByStoreHash returns every row of a store, most recently created first.
func (s *TenantStore) ListByStoreHash(ctx context.Context, storeHash string) ([]TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE store_hash = $1
        ORDER BY created_at DESC, platform_user_id DESC`, tenantColumns, TenantsTable)

	rows, err := s.pool.Query(ctx, query, storeHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes one row; a missing row is not an error.
func (s *TenantStore) Delete(ctx context.Context, storeHash string, platformUserID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE store_hash = $1 AND platform_user_id = $2`, TenantsTable)
	_, err := s.pool.Exec(ctx, query, storeHash, platformUserID)
	return err
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(
		&rec.StoreHash, &rec.PlatformUserID, &rec.PlatformEmail, &rec.PlatformAccessToken, &rec.PlatformScope,
		&rec.WebhooksRegistered, &rec.CRMAccessToken, &rec.CRMRefreshToken, &rec.CRMTokenExpiry, &rec.CRMHubID,
		&rec.CRMHubDomain, &rec.CRMAppID, &rec.CRMUser, &rec.CRMUserID, &rec.CRMTokenType, &rec.CRMScopes,
		&rec.CRMLinkedAt, &rec.BillingSubscriptionID, &rec.LastSyncTimestamp, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
