package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/events"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/repository"
)

func newTestRegistry(slot LockSlot, coupons ...domain.CouponDefinition) *Registry {
	return NewRegistry(catalog.NewStaticCache(coupons, nil), slot, nil, 10*time.Millisecond, "", nil)
}

func TestRegistry_OpenIsIdempotent(t *testing.T) {
	r := newTestRegistry(repository.NewMemoryLockRepository(), auto15)
	defer r.Close()

	a := r.Open(context.Background(), "cart-1")
	b := r.Open(context.Background(), "cart-1")
	if a != b {
		t.Error("expected the same session")
	}
	if a.CurrentMode() != domain.ChannelDelivery {
		t.Errorf("expected delivery default, got %s", a.CurrentMode())
	}
	if _, err := r.Get("cart-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry(repository.NewMemoryLockRepository())
	if _, err := r.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistry_OpenRestoresLock(t *testing.T) {
	slot := repository.NewMemoryLockRepository()
	lock := domain.NewLock(p20, []string{"burger"}, domain.SourceManual)
	lock.Discount = 20
	if err := slot.Save(context.Background(), "cart-1", lock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := newTestRegistry(slot, auto15, p20)
	defer r.Close()
	s := r.Open(context.Background(), "cart-1")
	if s.Manager.State() != domain.StateManualLocked {
		t.Errorf("expected MANUAL_LOCKED, got %s", s.Manager.State())
	}
}

func TestSession_CartChangesReconcile(t *testing.T) {
	r := newTestRegistry(repository.NewMemoryLockRepository(), auto15)
	defer r.Close()
	s := r.Open(context.Background(), "cart-1")

	if err := s.Cart.Put(burger(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Manager.State() == domain.StateAutoLocked })

	if err := s.Cart.SetQuantity("burger:large", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Manager.State() == domain.StateEmpty })
}

func TestSession_SetModeReconciles(t *testing.T) {
	delivery := auto15
	delivery.ChannelTargets = domain.ChannelTargets{Delivery: boolPtr(true)}
	r := newTestRegistry(repository.NewMemoryLockRepository(), delivery)
	defer r.Close()
	s := r.Open(context.Background(), "cart-1")

	if err := s.Cart.Put(burger(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Manager.State() == domain.StateAutoLocked })

	s.SetMode(domain.ChannelDining)
	waitFor(t, time.Second, func() bool { return s.Manager.State() == domain.StateEmpty })
}

func TestSession_Summary(t *testing.T) {
	r := newTestRegistry(repository.NewMemoryLockRepository(), p20)
	defer r.Close()
	s := r.Open(context.Background(), "cart-1")

	base := burger(2)
	extra := domain.CartLine{Key: "burger:large:cheese", ItemID: "burger", VariantID: "large", AddonRef: "burger:large", UnitPrice: 1.25, Quantity: 2}
	if err := s.Cart.Put(base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Cart.Put(extra); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return s.Manager.State() == domain.StateAutoLocked && !s.Guard.Pending()
	})

	sum := s.Summary()
	if sum.BaseSubtotal != 200 || sum.AddonSubtotal != 2.5 {
		t.Errorf("unexpected subtotals %v / %v", sum.BaseSubtotal, sum.AddonSubtotal)
	}
	if sum.Discount != 40 || sum.Total != 162.5 {
		t.Errorf("expected discount 40 and total 162.5, got %v / %v", sum.Discount, sum.Total)
	}
	if sum.State != domain.StateAutoLocked || len(sum.Lines) != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestRegistry_HandleCartEvent(t *testing.T) {
	r := newTestRegistry(repository.NewMemoryLockRepository(), auto15)
	defer r.Close()

	ev := events.CartLineChanged{EventID: "e1", CartID: "cart-9", Key: "burger:large", UnitPrice: 100, Quantity: 1}
	if err := r.HandleCartEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := r.Get("cart-9")
	if err != nil {
		t.Fatalf("expected session to be opened, got %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Manager.State() == domain.StateAutoLocked })

	bad := events.CartLineChanged{EventID: "e2", CartID: "cart-9", Key: "fries:regular:salt", Quantity: 1}
	if err := r.HandleCartEvent(context.Background(), bad); err == nil {
		t.Error("expected error for add-on of a missing parent")
	}
}

func TestRegistry_LateHydrationReconcilesOpenCarts(t *testing.T) {
	src := &staticSource{coupons: []catalog.Record{{"id": "p20", "code": "P20", "type": "percent", "value": 20.0, "eligibleItemIds": []any{"burger"}}}}
	r := NewRegistry(catalog.NewCache(nil, src), repository.NewMemoryLockRepository(), nil, 10*time.Millisecond, "", nil)
	defer r.Close()

	first := r.Open(context.Background(), "cart-1")
	if err := first.Cart.Put(burger(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool { return !first.Guard.Pending() })
	if first.Manager.State() != domain.StateEmpty {
		t.Fatalf("expected EMPTY before hydration, got %s", first.Manager.State())
	}

	// An apply on another cart hydrates the shared catalog.
	second := r.Open(context.Background(), "cart-2")
	if res := second.ApplyCode(context.Background(), "P20"); res.Applied {
		t.Fatalf("expected empty cart-2 to be rejected, got %+v", res)
	}

	waitFor(t, time.Second, func() bool { return first.Manager.State() == domain.StateAutoLocked })
}

// gatedSlot blocks Load for one cart until released.
type gatedSlot struct {
	*repository.MemoryLockRepository
	cartID  string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSlot) Load(ctx context.Context, cartID string) (*domain.CouponLock, error) {
	if cartID == s.cartID {
		s.once.Do(func() { close(s.started) })
		<-s.release
	}
	return s.MemoryLockRepository.Load(ctx, cartID)
}

func TestRegistry_SlowRestoreDoesNotBlockOtherCarts(t *testing.T) {
	slot := &gatedSlot{
		MemoryLockRepository: repository.NewMemoryLockRepository(),
		cartID:               "slow",
		started:              make(chan struct{}),
		release:              make(chan struct{}),
	}
	r := newTestRegistry(slot, auto15)
	defer r.Close()

	opened := make(chan *Session)
	go func() { opened <- r.Open(context.Background(), "slow") }()
	<-slot.started

	done := make(chan struct{})
	go func() {
		r.Open(context.Background(), "fast")
		_, _ = r.Get("fast")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected other carts to open while a restore is in flight")
	}

	close(slot.release)
	s := <-opened
	if got, err := r.Get("slow"); err != nil || got != s {
		t.Errorf("expected slow session to be registered, got %v", err)
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	slot := repository.NewMemoryLockRepository()
	r := newTestRegistry(slot, auto15)
	defer r.Close()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	idle := r.Open(context.Background(), "idle")
	if err := idle.Cart.Put(burger(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return idle.Manager.State() == domain.StateAutoLocked && !idle.Guard.Pending()
	})

	clock = clock.Add(20 * time.Minute)
	r.Open(context.Background(), "busy")
	clock = clock.Add(15 * time.Minute)

	if n := r.EvictIdle(30 * time.Minute); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := r.Get("idle"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected idle session gone, got %v", err)
	}
	if _, err := r.Get("busy"); err != nil {
		t.Errorf("expected busy session kept, got %v", err)
	}

	reopened := r.Open(context.Background(), "idle")
	if reopened.Manager.State() != domain.StateAutoLocked {
		t.Errorf("expected lock restored after eviction, got %s", reopened.Manager.State())
	}
}
