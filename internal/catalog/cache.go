package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// Source is a read-only provider of raw catalog records.
type Source interface {
	ListActiveCoupons(ctx context.Context) ([]Record, error)
	ListBanners(ctx context.Context) ([]Record, error)
}

// Cache holds the session-wide catalog. Once it holds at least one coupon it
// is never refreshed.
type Cache struct {
	mu       sync.RWMutex
	snapshot *Snapshot
	sources  []Source
	logger   *zap.Logger

	listeners []func()
}

// NewCache builds a cache that hydrates from sources in order, stopping at
// the first one that yields coupons.
func NewCache(logger *zap.Logger, sources ...Source) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	var live []Source
	for _, s := range sources {
		if s != nil {
			live = append(live, s)
		}
	}
	return &Cache{
		snapshot: NewSnapshot(nil, nil),
		sources:  live,
		logger:   logger,
	}
}

// NewStaticCache returns an already hydrated cache.
func NewStaticCache(coupons []domain.CouponDefinition, banners []domain.BannerDefinition) *Cache {
	return &Cache{
		snapshot: NewSnapshot(coupons, banners),
		logger:   zap.NewNop(),
	}
}

// Subscribe registers fn to run once the catalog first becomes non-empty.
// Listeners run on the hydrating goroutine, after the cache lock is released.
func (c *Cache) Subscribe(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Hydrate loads the catalog if it is still empty. Source failures are logged
// and the cache stays empty; an empty catalog is a valid state.
func (c *Cache) Hydrate(ctx context.Context) *Snapshot {
	snap, listeners := c.hydrate(ctx)
	for _, fn := range listeners {
		fn()
	}
	return snap
}

// hydrate returns the listeners to notify when this call filled the cache.
func (c *Cache) hydrate(ctx context.Context) (*Snapshot, []func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot.Size() > 0 {
		return c.snapshot, nil
	}

	for i, src := range c.sources {
		snap, err := load(ctx, src)
		if err != nil {
			c.logger.Warn("Catalog source unavailable",
				zap.Int("source", i),
				zap.Error(err))
			continue
		}
		if snap.Size() == 0 {
			continue
		}
		c.snapshot = snap
		c.logger.Info("Catalog hydrated",
			zap.Int("source", i),
			zap.Int("coupons", len(snap.Coupons())),
			zap.Int("banners", len(snap.Banners())))
		return c.snapshot, append([]func(){}, c.listeners...)
	}

	c.logger.Warn("Catalog is empty, no coupons will match")
	return c.snapshot, nil
}

func load(ctx context.Context, src Source) (*Snapshot, error) {
	rawCoupons, err := src.ListActiveCoupons(ctx)
	if err != nil {
		return nil, err
	}
	var coupons []domain.CouponDefinition
	for _, r := range rawCoupons {
		if !r.IsActive() {
			continue
		}
		if cd, ok := CouponFromRecord(r); ok {
			coupons = append(coupons, cd)
		}
	}
	if len(coupons) == 0 {
		return NewSnapshot(nil, nil), nil
	}

	rawBanners, err := src.ListBanners(ctx)
	if err != nil {
		return nil, err
	}
	var banners []domain.BannerDefinition
	for _, r := range rawBanners {
		if b, ok := BannerFromRecord(r); ok {
			banners = append(banners, b)
		}
	}
	return NewSnapshot(coupons, banners), nil
}
