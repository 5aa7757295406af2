package pricing

import "math"

// Money represents a monetary value in whole currency units as carried by the storefront
// (product prices are plain JSON numbers).
type Money = float64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty         int
	UnitPrice   Money
	DiscountPct float64
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal   Money `json:"subtotal"`
	Savings    Money `json:"savings"`
	ItemsTotal Money `json:"itemsTotal"`
	Tax        Money `json:"tax"`
	Shipping   Money `json:"shipping"`
	Total      Money `json:"total"`
}

// Round rounds halves toward positive infinity, matching the rounding used when the
// storefront displays discounted prices (2.5 -> 3, -2.5 -> -2).
func Round(v float64) float64 {
	f := math.Floor(v)
	if v-f >= 0.5 {
		return f + 1
	}
	return f
}

// UnitPrice returns the per-unit price after the percentage discount, rounded to the nearest
// whole currency unit. A zero discount leaves the price untouched.
func UnitPrice(price Money, discountPct float64) Money {
	if discountPct == 0 {
		return price
	}
	return Round(price - price*discountPct/100)
}

// LineTotal returns the discounted unit price multiplied by qty.
func LineTotal(price Money, discountPct float64, qty int) Money {
	return UnitPrice(price, discountPct) * Money(qty)
}

// Compute calculates checkout totals for the provided items.
func Compute(items []Item, taxBps int, shipping Money) Summary {
	var subtotal, itemsTotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += it.UnitPrice * Money(it.Qty)
		itemsTotal += LineTotal(it.UnitPrice, it.DiscountPct, it.Qty)
	}
	savings := subtotal - itemsTotal
	if savings < 0 {
		savings = 0
	}
	if shipping < 0 {
		shipping = 0
	}
	tax := Round(itemsTotal * Money(taxBps) / 10000)
	if tax < 0 {
		tax = 0
	}
	return Summary{
		Subtotal:   subtotal,
		Savings:    savings,
		ItemsTotal: itemsTotal,
		Tax:        tax,
		Shipping:   shipping,
		Total:      itemsTotal + tax + shipping,
	}
}

// MinorUnits converts a whole-unit amount into the smallest currency unit (e.g. paise).
func MinorUnits(amount Money) int64 {
	return int64(Round(amount * 100))
}
