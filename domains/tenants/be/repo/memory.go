package repo

import (
	"context"
	"sync"

	"github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local development.
type MemoryRepository struct {
	mu    sync.RWMutex
	byKey map[service.Key]service.Tenant
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byKey: make(map[service.Key]service.Tenant)}
}

func (r *MemoryRepository) Get(ctx context.Context, key service.Key) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byKey[key]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return clone(t), nil
}

func (r *MemoryRepository) ListByStoreHash(ctx context.Context, storeHash string) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []service.Tenant
	for key, t := range r.byKey {
		if key.StoreHash == storeHash {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (r *MemoryRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[t.Key()]; exists {
		return service.Tenant{}, service.ErrAlreadyExists
	}
	r.byKey[t.Key()] = clone(t)
	return clone(t), nil
}

func (r *MemoryRepository) Save(ctx context.Context, t service.Tenant, expectedVersion int64) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byKey[t.Key()]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	if current.Version != expectedVersion {
		return service.Tenant{}, service.ErrConflict
	}
	t.Version = expectedVersion + 1
	t.LastSyncTimestamp = current.LastSyncTimestamp
	r.byKey[t.Key()] = clone(t)
	return clone(t), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, key service.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byKey, key)
	return nil
}

func clone(t service.Tenant) service.Tenant {
	t.CRMScopes = append([]string(nil), t.CRMScopes...)
	return t
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
