package domain

import (
	"fmt"
	"strings"
	"time"
)

type Channel string

const (
	ChannelDelivery Channel = "delivery"
	ChannelDining   Channel = "dining"
)

func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelDelivery:
		return ChannelDelivery, true
	case ChannelDining:
		return ChannelDining, true
	}
	return "", false
}

type CouponKind string

const (
	KindCoupon CouponKind = "coupon"
	KindBanner CouponKind = "banner"
)

type DiscountType string

const (
	DiscountFlat    DiscountType = "flat"
	DiscountPercent DiscountType = "percent"
)

type LockSource string

const (
	SourceAuto   LockSource = "auto"
	SourceManual LockSource = "manual"
)

type LockState string

const (
	StateEmpty        LockState = "EMPTY"
	StateAutoLocked   LockState = "AUTO_LOCKED"
	StateManualLocked LockState = "MANUAL_LOCKED"
)

// ChannelTargets is an optional allow-list. With neither flag set every
// channel is allowed; otherwise only channels flagged true are.
type ChannelTargets struct {
	Delivery *bool `json:"delivery,omitempty" dynamodbav:"delivery,omitempty"`
	Dining   *bool `json:"dining,omitempty" dynamodbav:"dining,omitempty"`
}

func (t ChannelTargets) Allows(ch Channel) bool {
	if t.Delivery == nil && t.Dining == nil {
		return true
	}
	var flag *bool
	switch ch {
	case ChannelDelivery:
		flag = t.Delivery
	case ChannelDining:
		flag = t.Dining
	}
	return flag != nil && *flag
}

type CouponDefinition struct {
	ID              string         `json:"id"`
	Code            string         `json:"code"`
	Kind            CouponKind     `json:"kind"`
	Type            DiscountType   `json:"type"`
	Value           float64        `json:"value"`
	MinOrder        float64        `json:"min_order"`
	ChannelTargets  ChannelTargets `json:"channel_targets"`
	EligibleItemIDs []string       `json:"eligible_item_ids,omitempty"`
	UsageLimit      *int           `json:"usage_limit,omitempty"`
	UsedCount       int            `json:"used_count"`
}

// Exhausted reports whether the usage cap has been reached.
func (c CouponDefinition) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

type BannerDefinition struct {
	ID        string   `json:"id"`
	ItemIDs   []string `json:"item_ids"`
	CouponIDs []string `json:"coupon_ids"`
	Active    bool     `json:"active"`
}

// CouponLock is the single active promotional binding for a cart.
// EligibleItemIDs is the scope resolved when the lock was taken.
type CouponLock struct {
	CouponRef       string         `json:"coupon_ref" dynamodbav:"coupon_ref"`
	Code            string         `json:"code" dynamodbav:"code"`
	Type            DiscountType   `json:"type" dynamodbav:"type"`
	Value           float64        `json:"value" dynamodbav:"value"`
	MinOrder        float64        `json:"min_order" dynamodbav:"min_order"`
	ChannelTargets  ChannelTargets `json:"channel_targets" dynamodbav:"channel_targets"`
	EligibleItemIDs []string       `json:"eligible_item_ids" dynamodbav:"eligible_item_ids"`
	Source          LockSource     `json:"source" dynamodbav:"source"`
	Discount        float64        `json:"discount" dynamodbav:"discount"`
	TriggerKey      string         `json:"trigger_key,omitempty" dynamodbav:"trigger_key,omitempty"`
	AppliedAt       time.Time      `json:"applied_at" dynamodbav:"applied_at"`
}

// Signature identifies a lock decision for idempotent reconciliation.
func (l CouponLock) Signature() string {
	return LockSignature(l.Code, l.CouponRef, l.Discount)
}

func LockSignature(code, couponRef string, discount float64) string {
	return fmt.Sprintf("%s/%s|%.2f", strings.ToUpper(code), couponRef, discount)
}

// Valid reports whether a decoded snapshot carries enough to be used.
func (l CouponLock) Valid() bool {
	if l.CouponRef == "" {
		return false
	}
	if l.Type != DiscountFlat && l.Type != DiscountPercent {
		return false
	}
	return l.Source == SourceAuto || l.Source == SourceManual
}

func (l CouponLock) State() LockState {
	if l.Source == SourceManual {
		return StateManualLocked
	}
	return StateAutoLocked
}

// NewLock snapshots a coupon definition into a lock with the given scope.
func NewLock(c CouponDefinition, scope []string, source LockSource) CouponLock {
	return CouponLock{
		CouponRef:       c.ID,
		Code:            c.Code,
		Type:            c.Type,
		Value:           c.Value,
		MinOrder:        c.MinOrder,
		ChannelTargets:  c.ChannelTargets,
		EligibleItemIDs: append([]string(nil), scope...),
		Source:          source,
	}
}

type RejectReason string

const (
	ReasonNotFound       RejectReason = "not-found"
	ReasonNotEligibleNow RejectReason = "not-eligible-now"
)

type ApplyResult struct {
	Applied          bool         `json:"applied"`
	Reason           RejectReason `json:"reason,omitempty"`
	Lock             *CouponLock  `json:"lock,omitempty"`
	Discount         float64      `json:"discount"`
	NextEligibleItem string       `json:"next_eligible_item,omitempty"`
}

// QueueEntry is one auto-selection candidate.
type QueueEntry struct {
	Lock     CouponLock `json:"lock"`
	BaseKey  string     `json:"base_key"`
	Discount float64    `json:"discount"`
}

type PricingSummary struct {
	CartID           string      `json:"cart_id"`
	Channel          Channel     `json:"channel"`
	Lines            []CartLine  `json:"lines"`
	BaseSubtotal     float64     `json:"base_subtotal"`
	AddonSubtotal    float64     `json:"addon_subtotal"`
	Discount         float64     `json:"discount"`
	Total            float64     `json:"total"`
	State            LockState   `json:"state"`
	Lock             *CouponLock `json:"lock,omitempty"`
	NextEligibleItem string      `json:"next_eligible_item,omitempty"`
}
