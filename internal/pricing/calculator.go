// Package pricing computes cart and order totals.
package pricing

import "github.com/shopspring/decimal"

var (
	DefaultTaxRate               = decimal.RequireFromString("0.085")
	DefaultShippingFee           = decimal.RequireFromString("5.99")
	DefaultFreeShippingThreshold = decimal.RequireFromString("50.00")
)

// Line is a priced quantity. UnitPrice is whatever price the caller treats as
// authoritative: the current effective price for carts, the captured one for orders.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Zero is the totals block of an empty cart.
func Zero() Totals {
	return Totals{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Shipping: decimal.Zero,
		Discount: decimal.Zero,
		Total:    decimal.Zero,
	}
}

type Calculator struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

func NewCalculator(taxRate, shippingFee, freeShippingThreshold decimal.Decimal) Calculator {
	return Calculator{
		TaxRate:               taxRate,
		ShippingFee:           shippingFee,
		FreeShippingThreshold: freeShippingThreshold,
	}
}

func DefaultCalculator() Calculator {
	return NewCalculator(DefaultTaxRate, DefaultShippingFee, DefaultFreeShippingThreshold)
}

// Compute returns the totals for lines. An empty set of lines yields Zero
// regardless of discount, so an emptied cart never shows a shipping charge.
func (c Calculator) Compute(lines []Line, discount decimal.Decimal) Totals {
	if len(lines) == 0 {
		return Zero()
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	subtotal = round2(subtotal)

	tax := round2(subtotal.Mul(c.TaxRate))

	shipping := c.ShippingFee
	if subtotal.GreaterThanOrEqual(c.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	discount = round2(discount)

	total := round2(subtotal.Add(tax).Add(shipping).Sub(discount))
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: round2(shipping),
		Discount: discount,
		Total:    total,
	}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
