package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/cart"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/events"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/promotion"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("cart session not found")

// Session is one customer's cart together with its promotion engine.
type Session struct {
	ID      string
	Cart    *cart.Store
	Manager *LockManager
	Guard   *Guard

	mu   sync.RWMutex
	mode domain.Channel
	used time.Time
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.used = t
	s.mu.Unlock()
}

func (s *Session) lastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

func (s *Session) CurrentMode() domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode switches the ordering channel and schedules reconciliation.
func (s *Session) SetMode(ch domain.Channel) {
	s.mu.Lock()
	changed := s.mode != ch
	s.mode = ch
	s.mu.Unlock()

	if changed {
		s.Guard.Trigger()
	}
}

func (s *Session) ApplyCode(ctx context.Context, code string) domain.ApplyResult {
	return s.Manager.ApplyCode(ctx, code)
}

// Summary prices the cart with the lock as last reconciled.
func (s *Session) Summary() domain.PricingSummary {
	lines := s.Cart.Lines()
	lock := s.Manager.Lock()

	sum := domain.PricingSummary{
		CartID:           s.ID,
		Channel:          s.CurrentMode(),
		Lines:            lines,
		BaseSubtotal:     promotion.BaseSubtotal(lines),
		AddonSubtotal:    promotion.AddonSubtotal(lines),
		State:            domain.StateEmpty,
		Lock:             lock,
		NextEligibleItem: s.Manager.NextEligibleItem(),
	}
	if lock != nil {
		sum.Discount = lock.Discount
		sum.State = lock.State()
	}
	total := decimal.NewFromFloat(sum.BaseSubtotal).
		Add(decimal.NewFromFloat(sum.AddonSubtotal)).
		Sub(decimal.NewFromFloat(sum.Discount))
	if total.IsNegative() {
		total = decimal.Zero
	}
	sum.Total = total.Round(promotion.MinorUnitPlaces).InexactFloat64()
	return sum
}

func (s *Session) Close() {
	s.Guard.Stop()
}

// Registry owns the sessions of the process. All sessions share one catalog.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	catalog     *catalog.Cache
	slot        LockSlot
	publisher   LockPublisher
	debounce    time.Duration
	defaultMode domain.Channel
	logger      *zap.Logger
	now         func() time.Time
}

func NewRegistry(cat *catalog.Cache, slot LockSlot, publisher LockPublisher, debounce time.Duration, defaultMode domain.Channel, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMode == "" {
		defaultMode = domain.ChannelDelivery
	}
	r := &Registry{
		sessions:    make(map[string]*Session),
		catalog:     cat,
		slot:        slot,
		publisher:   publisher,
		debounce:    debounce,
		defaultMode: defaultMode,
		logger:      logger,
		now:         time.Now,
	}
	// A catalog that arrives late can make every open cart eligible.
	cat.Subscribe(r.triggerAll)
	return r
}

// Open returns the cart's session, creating it and restoring its persisted
// lock on first use. The restore runs outside the registry lock.
func (r *Registry) Open(ctx context.Context, cartID string) *Session {
	if s, ok := r.lookup(cartID); ok {
		return s
	}

	s := &Session{
		ID:   cartID,
		Cart: cart.NewStore(),
		mode: r.defaultMode,
	}
	s.Manager = NewLockManager(cartID, s.Cart, s, r.catalog, r.slot, r.publisher, r.logger)
	s.Guard = NewGuard(r.debounce, func() bool {
		return s.Manager.Reconcile(context.Background()).Changed()
	}, r.logger.With(zap.String("cart_id", cartID)))
	s.Cart.Subscribe(s.Guard.Trigger)
	s.Manager.Restore(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have opened the cart while we were loading.
	if existing, ok := r.sessions[cartID]; ok {
		s.Close()
		existing.touch(r.now())
		return existing
	}
	s.touch(r.now())
	r.sessions[cartID] = s
	r.logger.Info("Cart session opened", zap.String("cart_id", cartID))
	return s
}

func (r *Registry) Get(cartID string) (*Session, error) {
	s, ok := r.lookup(cartID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) lookup(cartID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[cartID]
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// EvictIdle closes sessions not used for maxIdle. Their persisted locks stay
// in the slot and are restored when the cart is opened again.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, s := range r.sessions {
		if s.lastUsed().After(cutoff) {
			continue
		}
		s.Close()
		delete(r.sessions, id)
		evicted++
	}
	if evicted > 0 {
		r.logger.Info("Evicted idle cart sessions", zap.Int("count", evicted))
	}
	return evicted
}

func (r *Registry) triggerAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Guard.Trigger()
	}
}

// HandleCartEvent applies a cart line change received from the event stream.
func (r *Registry) HandleCartEvent(ctx context.Context, ev events.CartLineChanged) error {
	s := r.Open(ctx, ev.CartID)
	if err := s.Cart.Put(ev.Line()); err != nil {
		return fmt.Errorf("failed to apply cart event %s: %w", ev.EventID, err)
	}
	return nil
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
