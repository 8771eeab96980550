package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/events"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/promotion"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/repository"
	"go.uber.org/zap"
)

// LockSlot persists the single lock snapshot of a cart.
type LockSlot interface {
	Load(ctx context.Context, cartID string) (*domain.CouponLock, error)
	Save(ctx context.Context, cartID string, lock domain.CouponLock) error
	Clear(ctx context.Context, cartID string) error
}

type LockPublisher interface {
	PublishLockChanged(ctx context.Context, event events.PromotionLockChanged) error
}

type CartView interface {
	Lines() []domain.CartLine
	BaseOrder() []string
}

type ChannelProvider interface {
	CurrentMode() domain.Channel
}

// Outcome describes one reconciliation pass.
type Outcome struct {
	State      domain.LockState
	Lock       *domain.CouponLock
	Transition events.Transition // empty when nothing was written
}

func (o Outcome) Changed() bool { return o.Transition != "" }

// LockManager owns the cart's only coupon lock. It is the single writer of
// the lock slot.
type LockManager struct {
	mu        sync.Mutex
	cartID    string
	cart      CartView
	channel   ChannelProvider
	catalog   *catalog.Cache
	slot      LockSlot
	publisher LockPublisher
	logger    *zap.Logger
	now       func() time.Time

	lock          *domain.CouponLock
	lastSignature string
	pendingClear  bool
	breadcrumb    string
}

func NewLockManager(cartID string, cart CartView, channel ChannelProvider, cat *catalog.Cache, slot LockSlot, publisher LockPublisher, logger *zap.Logger) *LockManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockManager{
		cartID:    cartID,
		cart:      cart,
		channel:   channel,
		catalog:   cat,
		slot:      slot,
		publisher: publisher,
		logger:    logger.With(zap.String("cart_id", cartID)),
		now:       time.Now,
	}
}

// Restore loads the persisted lock. Missing, unreadable or malformed
// snapshots leave the manager EMPTY.
func (m *LockManager) Restore(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, err := m.slot.Load(ctx, m.cartID)
	switch {
	case err == nil:
		m.lock = lock
		m.lastSignature = lock.Signature()
		return
	case errors.Is(err, repository.ErrLockNotFound):
	case errors.Is(err, repository.ErrMalformedLock):
		m.logger.Warn("Ignoring malformed lock snapshot", zap.Error(err))
		m.pendingClear = true
	default:
		m.logger.Warn("Failed to load lock snapshot", zap.Error(err))
	}
	m.lock = nil
	m.lastSignature = ""
}

// Reconcile brings the lock in line with the cart, channel and cached
// catalog. It never hydrates the catalog.
func (m *LockManager) Reconcile(ctx context.Context) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.catalog.Snapshot()
	lines := m.cart.Lines()
	order := m.cart.BaseOrder()
	ch := m.channel.CurrentMode()

	var desired *domain.CouponLock
	if len(order) > 0 {
		desired = m.desiredLocked(snap, lines, order, ch)
	}
	return m.commitLocked(ctx, desired)
}

func (m *LockManager) desiredLocked(snap *catalog.Snapshot, lines []domain.CartLine, order []string, ch domain.Channel) *domain.CouponLock {
	if m.lock != nil && m.lock.Source == domain.SourceManual {
		d := promotion.Discount(snap, *m.lock, promotion.BaseSubtotal(lines), lines, ch)
		if d > 0 {
			kept := *m.lock
			kept.Discount = d
			return &kept
		}
	}

	queue := promotion.BuildQueue(snap, lines, order, ch)
	if len(queue) == 0 {
		return nil
	}
	head := queue[0].Lock
	return &head
}

// ApplyCode tries to pin a coupon by code or id. Failure leaves the lock
// untouched and records the next-eligible-item hint.
func (m *LockManager) ApplyCode(ctx context.Context, text string) domain.ApplyResult {
	// Hydrate on first use
	snap := m.catalog.Snapshot()
	if snap.Size() == 0 {
		snap = m.catalog.Hydrate(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := snap.Lookup(text)
	if !ok {
		m.breadcrumb = ""
		m.logger.Info("Coupon code not found", zap.String("code", text))
		return domain.ApplyResult{Reason: domain.ReasonNotFound}
	}

	lines := m.cart.Lines()
	scope := promotion.ResolveCoupon(snap, c)
	lock := domain.NewLock(c, scope.IDs(), domain.SourceManual)

	var d float64
	if !c.Exhausted() {
		d = promotion.Discount(snap, lock, promotion.BaseSubtotal(lines), lines, m.channel.CurrentMode())
	}
	if d <= 0 {
		m.breadcrumb = ""
		if !c.Exhausted() {
			m.breadcrumb = nextEligibleItem(scope, lines)
		}
		m.logger.Info("Coupon not eligible now",
			zap.String("coupon_id", c.ID),
			zap.String("code", c.Code),
			zap.Bool("exhausted", c.Exhausted()),
			zap.String("next_eligible_item", m.breadcrumb))
		return domain.ApplyResult{Reason: domain.ReasonNotEligibleNow, NextEligibleItem: m.breadcrumb}
	}

	lock.Discount = d
	m.breadcrumb = ""
	out := m.commitLocked(ctx, &lock)
	return domain.ApplyResult{Applied: true, Lock: out.Lock, Discount: d}
}

// Clear drops the current lock on request.
func (m *LockManager) Clear(ctx context.Context) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(ctx, nil)
}

func (m *LockManager) commitLocked(ctx context.Context, desired *domain.CouponLock) Outcome {
	current := m.lock

	if desired == nil {
		if current == nil && !m.pendingClear {
			return Outcome{State: domain.StateEmpty}
		}
		m.lock = nil
		m.lastSignature = ""
		// Clear persisted lock
		if err := m.slot.Clear(ctx, m.cartID); err != nil {
			m.pendingClear = true
			m.logger.Error("Failed to clear lock slot", zap.Error(err))
		} else {
			m.pendingClear = false
		}
		if current == nil {
			return Outcome{State: domain.StateEmpty}
		}
		m.logger.Info("Coupon lock released",
			zap.String("coupon_id", current.CouponRef),
			zap.String("code", current.Code),
			zap.String("source", string(current.Source)))
		// 이벤트 발행
		m.publish(ctx, events.TransitionCleared, nil)
		return Outcome{State: domain.StateEmpty, Transition: events.TransitionCleared}
	}

	sig := desired.Signature()
	if current != nil && sig == m.lastSignature && desired.Source == current.Source {
		return Outcome{State: current.State(), Lock: cloneLock(current)}
	}

	transition := events.TransitionApplied
	switch {
	case current == nil:
	case current.CouponRef == desired.CouponRef && current.Source == desired.Source:
		transition = events.TransitionRefreshed
		desired.AppliedAt = current.AppliedAt
	default:
		transition = events.TransitionReplaced
	}
	if desired.AppliedAt.IsZero() {
		desired.AppliedAt = m.now().UTC()
	}

	// Persist lock
	m.lock = desired
	if err := m.slot.Save(ctx, m.cartID, *desired); err != nil {
		// lastSignature stays stale so the next pass retries the write.
		m.logger.Error("Failed to save lock slot", zap.Error(err))
	} else {
		m.lastSignature = sig
		m.pendingClear = false
	}

	m.logger.Info("Coupon lock "+string(transition),
		zap.String("coupon_id", desired.CouponRef),
		zap.String("code", desired.Code),
		zap.Float64("discount", desired.Discount),
		zap.String("source", string(desired.Source)))
	// 이벤트 발행
	m.publish(ctx, transition, desired)
	return Outcome{State: desired.State(), Lock: cloneLock(desired), Transition: transition}
}

func (m *LockManager) publish(ctx context.Context, transition events.Transition, lock *domain.CouponLock) {
	if m.publisher == nil {
		return
	}
	ev := events.NewPromotionLockChanged(m.cartID, transition, lock)
	if err := m.publisher.PublishLockChanged(ctx, ev); err != nil {
		m.logger.Warn("Failed to publish lock event",
			zap.String("event_id", ev.EventID),
			zap.Error(err))
	}
}

// Lock returns a copy of the active lock, or nil when EMPTY.
func (m *LockManager) Lock() *domain.CouponLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneLock(m.lock)
}

func (m *LockManager) State() domain.LockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lock == nil {
		return domain.StateEmpty
	}
	return m.lock.State()
}

// NextEligibleItem is the hint left by the last failed manual apply.
func (m *LockManager) NextEligibleItem() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breadcrumb
}

// Queue exposes the current auto-selection order.
func (m *LockManager) Queue() []domain.QueueEntry {
	lines := m.cart.Lines()
	return promotion.BuildQueue(m.catalog.Snapshot(), lines, m.cart.BaseOrder(), m.channel.CurrentMode())
}

// nextEligibleItem picks the first scope entry not already satisfied by a
// live base line, falling back to the first entry.
func nextEligibleItem(scope promotion.Scope, lines []domain.CartLine) string {
	for _, id := range scope.IDs() {
		single := promotion.NewScope(promotion.OriginExplicit, []string{id})
		inCart := false
		for _, l := range lines {
			if !l.IsAddon() && l.Quantity > 0 && single.Matches(l) {
				inCart = true
				break
			}
		}
		if !inCart {
			return id
		}
	}
	return scope.First()
}

func cloneLock(l *domain.CouponLock) *domain.CouponLock {
	if l == nil {
		return nil
	}
	c := *l
	c.EligibleItemIDs = append([]string(nil), l.EligibleItemIDs...)
	return &c
}
