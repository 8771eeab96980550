package promotion

import (
	"strings"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// ScopeOrigin tags where an eligibility set came from.
type ScopeOrigin int

const (
	OriginNone ScopeOrigin = iota
	OriginExplicit
	OriginBanner
)

func (o ScopeOrigin) String() string {
	switch o {
	case OriginExplicit:
		return "explicit"
	case OriginBanner:
		return "banner"
	default:
		return "none"
	}
}

// Scope is a normalized, ordered set of lower-cased item identifiers a coupon
// may discount. The zero value is empty and matches nothing.
type Scope struct {
	Origin ScopeOrigin
	ids    []string
	set    map[string]struct{}
}

func NewScope(origin ScopeOrigin, ids []string) Scope {
	s := Scope{set: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := s.set[id]; dup {
			continue
		}
		s.set[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	if len(s.ids) > 0 {
		s.Origin = origin
	}
	return s
}

func (s Scope) Empty() bool { return len(s.ids) == 0 }

// IDs returns the identifiers in resolution order.
func (s Scope) IDs() []string { return append([]string(nil), s.ids...) }

// First is the advisory "next eligible item" for a coupon.
func (s Scope) First() string {
	if s.Empty() {
		return ""
	}
	return s.ids[0]
}

// Matches reports whether a cart line falls in the scope, on its item id,
// its itemId:variantId base key, or the item-id prefix of that base key.
func (s Scope) Matches(line domain.CartLine) bool {
	if s.Empty() {
		return false
	}
	base := strings.ToLower(line.BaseKey())
	if s.has(strings.ToLower(line.ItemID)) || s.has(base) {
		return true
	}
	if i := strings.IndexByte(base, ':'); i > 0 {
		return s.has(base[:i])
	}
	return false
}

func (s Scope) has(id string) bool {
	_, ok := s.set[id]
	return ok
}

// ResolveCoupon derives a coupon's scope: its explicit item list when present,
// otherwise the union of item lists of banners linking it. It never widens to
// all items.
func ResolveCoupon(snap *catalog.Snapshot, c domain.CouponDefinition) Scope {
	if len(c.EligibleItemIDs) > 0 {
		return NewScope(OriginExplicit, c.EligibleItemIDs)
	}
	return bannerScope(snap, c.ID)
}

// ResolveLock uses the lock's stored scope, falling back to banner linkage.
func ResolveLock(snap *catalog.Snapshot, l domain.CouponLock) Scope {
	if len(l.EligibleItemIDs) > 0 {
		return NewScope(OriginExplicit, l.EligibleItemIDs)
	}
	return bannerScope(snap, l.CouponRef)
}

func bannerScope(snap *catalog.Snapshot, couponID string) Scope {
	var ids []string
	for _, b := range snap.BannersForCoupon(couponID) {
		ids = append(ids, b.ItemIDs...)
	}
	return NewScope(OriginBanner, ids)
}
