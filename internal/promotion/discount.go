package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

// MinorUnitPlaces is the currency precision discounts are rounded to.
const MinorUnitPlaces = 2

var hundred = decimal.NewFromInt(100)

// BaseSubtotal sums price×qty over all base lines.
func BaseSubtotal(lines []domain.CartLine) float64 {
	return sum(lines, false).Round(MinorUnitPlaces).InexactFloat64()
}

// AddonSubtotal sums price×qty over all add-on lines.
func AddonSubtotal(lines []domain.CartLine) float64 {
	return sum(lines, true).Round(MinorUnitPlaces).InexactFloat64()
}

func sum(lines []domain.CartLine, addons bool) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.IsAddon() != addons || l.Quantity <= 0 {
			continue
		}
		total = total.Add(lineAmount(l))
	}
	return total
}

func lineAmount(l domain.CartLine) decimal.Decimal {
	return decimal.NewFromFloat(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount computes what the lock would take off the cart right now. It is
// total: every rejection is a zero result.
//
// baseSubtotal is the subtotal of all base lines and is what minOrder is
// compared against, even when only some of those lines are eligible.
func Discount(snap *catalog.Snapshot, lock domain.CouponLock, baseSubtotal float64, lines []domain.CartLine, ch domain.Channel) float64 {
	if !lock.ChannelTargets.Allows(ch) {
		return 0
	}
	if lock.MinOrder > 0 && baseSubtotal < lock.MinOrder {
		return 0
	}

	scope := ResolveLock(snap, lock)
	if scope.Empty() {
		return 0
	}

	eligibleBase := decimal.Zero
	eligibleQty := int64(0)
	for _, l := range lines {
		if l.IsAddon() || l.Quantity <= 0 || !scope.Matches(l) {
			continue
		}
		eligibleBase = eligibleBase.Add(lineAmount(l))
		eligibleQty += int64(l.Quantity)
	}
	if !eligibleBase.IsPositive() {
		return 0
	}

	value := decimal.NewFromFloat(lock.Value)
	var discount decimal.Decimal
	switch lock.Type {
	case domain.DiscountPercent:
		discount = eligibleBase.Mul(value).Div(hundred).Round(0)
	case domain.DiscountFlat:
		discount = decimal.Min(value.Mul(decimal.NewFromInt(eligibleQty)), eligibleBase)
	default:
		return 0
	}

	if discount.IsNegative() {
		return 0
	}
	return discount.Round(MinorUnitPlaces).InexactFloat64()
}
