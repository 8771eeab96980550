package promotion

import (
	"sort"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// BuildQueue lists auto-selection candidates ordered by when their triggering
// item was first added, then by that item's coupon priority. The head is the
// auto choice. A coupon is only a candidate for items inside its own scope.
func BuildQueue(snap *catalog.Snapshot, lines []domain.CartLine, baseOrder []string, ch domain.Channel) []domain.QueueEntry {
	live := make(map[string]domain.CartLine, len(lines))
	for _, l := range lines {
		if !l.IsAddon() && l.Quantity > 0 {
			live[l.Key] = l
		}
	}
	subtotal := BaseSubtotal(lines)

	var queue []domain.QueueEntry
	for _, key := range baseOrder {
		line, ok := live[key]
		if !ok {
			continue
		}
		for _, c := range CandidatesFor(snap, line) {
			if c.Kind == domain.KindBanner || c.Exhausted() {
				continue
			}
			scope := ResolveCoupon(snap, c)
			if !scope.Matches(line) {
				continue
			}
			lock := domain.NewLock(c, scope.IDs(), domain.SourceAuto)
			lock.TriggerKey = key
			d := Discount(snap, lock, subtotal, lines, ch)
			if d <= 0 {
				continue
			}
			lock.Discount = d
			queue = append(queue, domain.QueueEntry{Lock: lock, BaseKey: key, Discount: d})
		}
	}
	return queue
}

// CandidatesFor returns the coupon priority list for one base line: coupons
// of banners showing the item (active banners first, then catalog order,
// each in its own link order), followed by every other catalog coupon.
func CandidatesFor(snap *catalog.Snapshot, line domain.CartLine) []domain.CouponDefinition {
	var linked []domain.BannerDefinition
	for _, b := range snap.Banners() {
		if NewScope(OriginBanner, b.ItemIDs).Matches(line) {
			linked = append(linked, b)
		}
	}
	sort.SliceStable(linked, func(i, j int) bool {
		return linked[i].Active && !linked[j].Active
	})

	seen := make(map[string]bool)
	var out []domain.CouponDefinition
	add := func(c domain.CouponDefinition) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	for _, b := range linked {
		for _, id := range b.CouponIDs {
			if c, ok := snap.Coupon(id); ok {
				add(c)
			}
		}
	}
	for _, c := range snap.Coupons() {
		add(c)
	}
	return out
}
