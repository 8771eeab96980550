package domain

import "strings"

// CartLine is one purchasable unit. Key is itemId:variantId for base lines
// and itemId:variantId:addonName for add-ons.
type CartLine struct {
	Key       string  `json:"key"`
	ItemID    string  `json:"item_id"`
	VariantID string  `json:"variant_id"`
	AddonRef  string  `json:"addon_ref,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

func (l CartLine) IsAddon() bool {
	return l.AddonRef != ""
}

func (l CartLine) BaseKey() string {
	return BaseKeyOf(l.ItemID, l.VariantID)
}

func (l CartLine) Amount() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

func BaseKeyOf(itemID, variantID string) string {
	return itemID + ":" + variantID
}

// SplitKey breaks a compound key into its parts. addon is empty for base keys.
func SplitKey(key string) (itemID, variantID, addon string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		if parts[2] == "" {
			return "", "", "", false
		}
		addon = parts[2]
	}
	return parts[0], parts[1], addon, true
}
