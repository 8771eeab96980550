package catalog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// Record is a loosely typed catalog document as read from a store.
type Record map[string]any

// CouponFromRecord coerces a record into a CouponDefinition. Records that do
// not describe a usable coupon are rejected.
func CouponFromRecord(r Record) (domain.CouponDefinition, bool) {
	id := r.str("id", "couponId", "coupon_id")
	if id == "" {
		return domain.CouponDefinition{}, false
	}

	kind := domain.CouponKind(strings.ToLower(r.str("kind")))
	switch kind {
	case "":
		kind = domain.KindCoupon
	case domain.KindCoupon, domain.KindBanner:
	default:
		return domain.CouponDefinition{}, false
	}

	var typ domain.DiscountType
	switch strings.ToLower(r.str("type", "discountType", "discount_type")) {
	case "flat", "fixed", "amount":
		typ = domain.DiscountFlat
	case "percent", "percentage":
		typ = domain.DiscountPercent
	default:
		return domain.CouponDefinition{}, false
	}

	value, ok := r.num("value", "discountValue", "discount_value")
	if !ok || value < 0 || (typ == domain.DiscountPercent && value > 100) {
		return domain.CouponDefinition{}, false
	}

	minOrder, _ := r.num("minOrder", "min_order", "minOrderValue")
	if minOrder < 0 {
		minOrder = 0
	}

	c := domain.CouponDefinition{
		ID:              id,
		Code:            strings.TrimSpace(r.str("code")),
		Kind:            kind,
		Type:            typ,
		Value:           value,
		MinOrder:        minOrder,
		ChannelTargets:  channelTargets(r.get("channelTargets", "channel_targets", "channels")),
		EligibleItemIDs: strList(r.get("eligibleItemIds", "eligible_item_ids", "itemIds", "item_ids")),
	}
	if limit, ok := r.num("usageLimit", "usage_limit"); ok && limit > 0 {
		n := int(limit)
		c.UsageLimit = &n
	}
	if used, ok := r.num("usedCount", "used_count"); ok && used > 0 {
		c.UsedCount = int(used)
	}
	return c, true
}

// BannerFromRecord coerces a record into a BannerDefinition.
func BannerFromRecord(r Record) (domain.BannerDefinition, bool) {
	id := r.str("id", "bannerId", "banner_id")
	if id == "" {
		return domain.BannerDefinition{}, false
	}
	b := domain.BannerDefinition{
		ID:        id,
		ItemIDs:   strList(r.get("itemIds", "item_ids", "items")),
		CouponIDs: strList(r.get("couponIds", "coupon_ids", "linkedCoupons", "linked_coupons")),
		Active:    boolOf(r.get("active", "featured", "isActive")),
	}
	return b, true
}

// IsActive reports whether a coupon record is switched on. Records without
// an explicit flag count as active.
func (r Record) IsActive() bool {
	v := r.get("active", "isActive", "is_active")
	if v == nil {
		return true
	}
	return boolOf(v)
}

func (r Record) get(keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (r Record) str(keys ...string) string {
	switch v := r.get(keys...).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func (r Record) num(keys ...string) (float64, bool) {
	return numOf(r.get(keys...))
}

func numOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func boolOf(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	if n, ok := numOf(v); ok {
		return n != 0
	}
	return false
}

func strList(v any) []string {
	var raw []string
	switch l := v.(type) {
	case []string:
		raw = l
	case []any:
		for _, e := range l {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(l, ",")
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func channelTargets(v any) domain.ChannelTargets {
	var t domain.ChannelTargets
	m, ok := v.(map[string]any)
	if !ok {
		return t
	}
	if d, ok := m["delivery"]; ok && d != nil {
		b := boolOf(d)
		t.Delivery = &b
	}
	for _, k := range []string{"dining", "dineIn", "dine_in"} {
		if d, ok := m[k]; ok && d != nil {
			b := boolOf(d)
			t.Dining = &b
			break
		}
	}
	return t
}
