package catalog

import (
	"strings"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// Snapshot is an immutable view of the coupon and banner catalog.
type Snapshot struct {
	coupons  []domain.CouponDefinition
	banners  []domain.BannerDefinition
	byID     map[string]int
	byCoupon map[string][]int
}

func NewSnapshot(coupons []domain.CouponDefinition, banners []domain.BannerDefinition) *Snapshot {
	s := &Snapshot{
		coupons:  append([]domain.CouponDefinition(nil), coupons...),
		banners:  append([]domain.BannerDefinition(nil), banners...),
		byID:     make(map[string]int, len(coupons)),
		byCoupon: make(map[string][]int),
	}
	for i, c := range s.coupons {
		if _, dup := s.byID[c.ID]; !dup {
			s.byID[c.ID] = i
		}
	}
	for i, b := range s.banners {
		seen := make(map[string]bool, len(b.CouponIDs))
		for _, id := range b.CouponIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			s.byCoupon[id] = append(s.byCoupon[id], i)
		}
	}
	return s
}

func (s *Snapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.coupons)
}

// Coupons returns definitions in catalog order. Callers must not modify it.
func (s *Snapshot) Coupons() []domain.CouponDefinition {
	if s == nil {
		return nil
	}
	return s.coupons
}

// Banners returns banners in catalog order. Callers must not modify it.
func (s *Snapshot) Banners() []domain.BannerDefinition {
	if s == nil {
		return nil
	}
	return s.banners
}

func (s *Snapshot) Coupon(id string) (domain.CouponDefinition, bool) {
	if s == nil {
		return domain.CouponDefinition{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return domain.CouponDefinition{}, false
	}
	return s.coupons[i], true
}

// BannersForCoupon returns the banners that link the coupon, in catalog order.
func (s *Snapshot) BannersForCoupon(couponID string) []domain.BannerDefinition {
	if s == nil {
		return nil
	}
	idx := s.byCoupon[couponID]
	out := make([]domain.BannerDefinition, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.banners[i])
	}
	return out
}

// Lookup finds a directly applicable coupon by code (case-insensitive) or id.
// Banner-kind entries never match.
func (s *Snapshot) Lookup(text string) (domain.CouponDefinition, bool) {
	text = strings.TrimSpace(text)
	if s == nil || text == "" {
		return domain.CouponDefinition{}, false
	}
	for _, c := range s.coupons {
		if c.Kind == domain.KindBanner {
			continue
		}
		if c.Code != "" && strings.EqualFold(c.Code, text) {
			return c, true
		}
	}
	if c, ok := s.Coupon(text); ok && c.Kind != domain.KindBanner {
		return c, true
	}
	return domain.CouponDefinition{}, false
}
