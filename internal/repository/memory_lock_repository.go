package repository

import (
	"context"
	"sync"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// MemoryLockRepository is a process-local lock slot, used when no table is
// configured.
type MemoryLockRepository struct {
	mu    sync.RWMutex
	locks map[string]domain.CouponLock
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{locks: make(map[string]domain.CouponLock)}
}

func (r *MemoryLockRepository) Save(ctx context.Context, cartID string, lock domain.CouponLock) error {
	lock.EligibleItemIDs = append([]string(nil), lock.EligibleItemIDs...)
	r.mu.Lock()
	r.locks[cartID] = lock
	r.mu.Unlock()
	return nil
}

func (r *MemoryLockRepository) Load(ctx context.Context, cartID string) (*domain.CouponLock, error) {
	r.mu.RLock()
	lock, ok := r.locks[cartID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrLockNotFound
	}
	if !lock.Valid() {
		return nil, ErrMalformedLock
	}
	return &lock, nil
}

func (r *MemoryLockRepository) Clear(ctx context.Context, cartID string) error {
	r.mu.Lock()
	delete(r.locks, cartID)
	r.mu.Unlock()
	return nil
}
