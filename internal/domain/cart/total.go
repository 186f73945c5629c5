package cart

import "github.com/shopspring/decimal"

// EffectivePrice returns the price charged per unit: the discount price when
// it is present and positive, the unit price otherwise.
func EffectivePrice(it Item) decimal.Decimal {
	if it.DiscountPrice.Valid && it.DiscountPrice.Decimal.IsPositive() {
		return it.DiscountPrice.Decimal
	}
	return it.UnitPrice
}

// LineTotal is EffectivePrice multiplied by the quantity, unrounded.
func LineTotal(it Item) decimal.Decimal {
	return EffectivePrice(it).Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ComputeTotal sums every line at its effective price and rounds the result
// to 2 decimal places. It is the only place a checkout amount is derived.
func ComputeTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(LineTotal(it))
	}
	return total.Round(2)
}

// MinorUnits converts an amount to the smallest currency unit (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
