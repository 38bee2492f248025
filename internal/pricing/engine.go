package pricing

// Money represents a monetary value stored in minor units (cents).
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money
	Discount Money
	Tax      Money
	Shipping Money
	Total    Money
}

// Compute calculates order totals for the provided line items. Tax is a flat
// rate expressed in basis points applied to the discounted subtotal; shipping
// is added after tax.
func Compute(items []Item, discount Money, taxBps int, shipping Money) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	taxable := subtotal - discount
	tax := (taxable * Money(taxBps)) / 10000
	if shipping < 0 {
		shipping = 0
	}
	total := taxable + tax + shipping
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}
}

// FromDollars converts a decimal dollar amount to minor units, rounding to the
// nearest cent.
func FromDollars(amount float64) Money {
	if amount < 0 {
		amount = -amount
		return -Money(amount*100 + 0.5)
	}
	return Money(amount*100 + 0.5)
}

// Dollars renders a Money value as a decimal dollar amount.
func Dollars(m Money) float64 {
	return float64(m) / 100
}
