package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Promo is a vetted promotion a shopper can attach to a cart by code.
type Promo struct {
	Code string
	// Percent is the fraction of the subtotal taken off.
	Percent      decimal.Decimal
	FreeShipping bool
}

const (
	PromoWelcome10 = "WELCOME10"
	PromoFreeShip  = "FREESHIP"
)

var promos = map[string]Promo{
	PromoWelcome10: {Code: PromoWelcome10, Percent: decimal.RequireFromString("0.10")},
	PromoFreeShip:  {Code: PromoFreeShip, FreeShipping: true},
}

func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupPromo resolves a code case-insensitively.
func LookupPromo(code string) (Promo, bool) {
	p, ok := promos[NormalizePromoCode(code)]
	return p, ok
}

// ComputeWithPromo prices lines under the promotion named by code. An empty
// or unknown code prices them without one. The discount is derived from the
// current subtotal, so it follows every change to the lines.
func (c Calculator) ComputeWithPromo(lines []Line, code string) Totals {
	promo, ok := LookupPromo(code)
	if !ok {
		return c.Compute(lines, decimal.Zero)
	}
	if promo.FreeShipping {
		c.ShippingFee = decimal.Zero
	}
	base := c.Compute(lines, decimal.Zero)
	if promo.Percent.IsZero() {
		return base
	}
	return c.Compute(lines, round2(base.Subtotal.Mul(promo.Percent)))
}
