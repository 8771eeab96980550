package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	"github.com/google/uuid"
)

type Transition string

const (
	TransitionApplied   Transition = "applied"
	TransitionReplaced  Transition = "replaced"
	TransitionRefreshed Transition = "refreshed"
	TransitionCleared   Transition = "cleared"
)

// PromotionLockChanged is emitted on every lock slot write.
type PromotionLockChanged struct {
	EventID    string             `json:"event_id"`
	CartID     string             `json:"cart_id"`
	Transition Transition         `json:"transition"`
	State      domain.LockState   `json:"state"`
	Lock       *domain.CouponLock `json:"lock,omitempty"`
	Discount   float64            `json:"discount"`
	Timestamp  time.Time          `json:"timestamp"`
}

func NewPromotionLockChanged(cartID string, transition Transition, lock *domain.CouponLock) PromotionLockChanged {
	ev := PromotionLockChanged{
		EventID:    uuid.New().String(),
		CartID:     cartID,
		Transition: transition,
		State:      domain.StateEmpty,
		Timestamp:  time.Now().UTC(),
	}
	if lock != nil {
		snapshot := *lock
		ev.Lock = &snapshot
		ev.State = lock.State()
		ev.Discount = lock.Discount
	}
	return ev
}

// CartLineChanged is a cart write arriving from the ordering front end.
type CartLineChanged struct {
	EventID   string    `json:"event_id"`
	CartID    string    `json:"cart_id"`
	Key       string    `json:"key"`
	ItemID    string    `json:"item_id"`
	VariantID string    `json:"variant_id"`
	AddonRef  string    `json:"addon_ref,omitempty"`
	UnitPrice float64   `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

func (e CartLineChanged) Line() domain.CartLine {
	return domain.CartLine{
		Key:       e.Key,
		ItemID:    e.ItemID,
		VariantID: e.VariantID,
		AddonRef:  e.AddonRef,
		UnitPrice: e.UnitPrice,
		Quantity:  e.Quantity,
	}
}

func DecodeCartLineChanged(data []byte) (CartLineChanged, error) {
	var ev CartLineChanged
	if err := json.Unmarshal(data, &ev); err != nil {
		return CartLineChanged{}, fmt.Errorf("failed to decode cart event: %w", err)
	}
	if ev.CartID == "" || ev.Key == "" {
		return CartLineChanged{}, fmt.Errorf("cart event %s is missing cart_id or key", ev.EventID)
	}
	if ev.Quantity < 0 {
		return CartLineChanged{}, fmt.Errorf("cart event %s has negative quantity", ev.EventID)
	}
	return ev, nil
}

func cartKey(cartID string) []byte {
	return []byte(fmt.Sprintf("CART#%s", cartID))
}
