package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = errors.New("tenant not found")
	ErrConflict      = errors.New("tenant record modified concurrently")
	ErrAlreadyExists = errors.New("tenant record already exists")
	ErrInvalidKey    = errors.New("store hash and platform user id are required")
)

// maxUpdateAttempts bounds the read-modify-write loop of Update.
const maxUpdateAttempts = 3

// Key identifies a tenant record.
type Key struct {
	StoreHash      string
	PlatformUserID int64
}

// Tenant is the linkage state of one installed store.
type Tenant struct {
	StoreHash      string
	PlatformUserID int64
	PlatformEmail  string

	PlatformAccessToken string
	PlatformScope       string
	WebhooksRegistered  bool

	CRMAccessToken  string
	CRMRefreshToken string
	CRMTokenExpiry  *time.Time
	CRMHubID        string
	CRMHubDomain    string
	CRMAppID        string
	CRMUser         string
	CRMUserID       string
	CRMTokenType    string
	CRMScopes       []string
	CRMLinkedAt     *time.Time

	BillingSubscriptionID string
	LastSyncTimestamp     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Key returns the record identity.
func (t Tenant) Key() Key {
	return Key{StoreHash: t.StoreHash, PlatformUserID: t.PlatformUserID}
}

// Installed reports whether the platform OAuth exchange completed for the record.
func (t Tenant) Installed() bool {
	return t.PlatformAccessToken != ""
}

// CRMLinked reports whether the CRM OAuth exchange completed for the record.
func (t Tenant) CRMLinked() bool {
	return t.CRMAccessToken != ""
}

// HasSubscription reports whether a billing subscription id is stored.
func (t Tenant) HasSubscription() bool {
	return t.BillingSubscriptionID != ""
}

// Repository abstracts persistence.
// Save must fail with ErrConflict when the stored version differs from expectedVersion,
// and must store the record with Version = expectedVersion+1. Save never writes
// LastSyncTimestamp, which belongs to the sync worker, and returns the record as stored.
type Repository interface {
	Get(ctx context.Context, key Key) (Tenant, error)
	ListByStoreHash(ctx context.Context, storeHash string) ([]Tenant, error)
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Save(ctx context.Context, t Tenant, expectedVersion int64) (Tenant, error)
	Delete(ctx context.Context, key Key) error
}

// Mutation edits a record in place. Returning an error aborts the write.
type Mutation func(t *Tenant) error

// Service provides tenant record operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the record stored under key.
func (s *Service) Get(ctx context.Context, key Key) (Tenant, error) {
	return s.repo.Get(ctx, key)
}

// FindByStoreHash returns the canonical record of a store.
func (s *Service) FindByStoreHash(ctx context.Context, storeHash string) (Tenant, error) {
	if strings.TrimSpace(storeHash) == "" {
		return Tenant{}, ErrNotFound
	}
	records, err := s.repo.ListByStoreHash(ctx, storeHash)
	if err != nil {
		return Tenant{}, err
	}
	return Canonical(records)
}

// ListByStoreHash returns every record of a store, including those left behind by reinstalls.
func (s *Service) ListByStoreHash(ctx context.Context, storeHash string) ([]Tenant, error) {
	if strings.TrimSpace(storeHash) == "" {
		return nil, nil
	}
	return s.repo.ListByStoreHash(ctx, storeHash)
}

// Create inserts a new record stamped with creation time and version 1.
func (s *Service) Create(ctx context.Context, t Tenant) (Tenant, error) {
	if strings.TrimSpace(t.StoreHash) == "" || t.PlatformUserID == 0 {
		return Tenant{}, ErrInvalidKey
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1
	return s.repo.Create(ctx, t)
}

// Update applies mutate to the canonical record of storeHash and writes it conditionally
// on the version that was read. Conflicts re-read and re-apply the mutation.
func (s *Service) Update(ctx context.Context, storeHash string, mutate Mutation) (Tenant, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.FindByStoreHash(ctx, storeHash)
		if err != nil {
			return Tenant{}, err
		}

		next := current
		next.CRMScopes = append([]string(nil), current.CRMScopes...)
		if err := mutate(&next); err != nil {
			return Tenant{}, err
		}
		next.StoreHash = current.StoreHash
		next.PlatformUserID = current.PlatformUserID
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = s.now()

		saved, err := s.repo.Save(ctx, next, current.Version)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Tenant{}, err
		}
		lastErr = err
	}
	return Tenant{}, fmt.Errorf("update tenant %s after %d attempts: %w", storeHash, maxUpdateAttempts, lastErr)
}

// Delete removes the record stored under key.
func (s *Service) Delete(ctx context.Context, key Key) error {
	return s.repo.Delete(ctx, key)
}

// Canonical picks the record a store hash resolves to when reinstalls left several:
// the most recently created, then the highest platform user id.
func Canonical(records []Tenant) (Tenant, error) {
	if len(records) == 0 {
		return Tenant{}, ErrNotFound
	}
	sorted := append([]Tenant(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].PlatformUserID > sorted[j].PlatformUserID
	})
	return sorted[0], nil
}
