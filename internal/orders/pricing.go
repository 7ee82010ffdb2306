package orders

import (
	"github.com/shopspring/decimal"
)

var (
	TaxRate               = decimal.RequireFromString("0.18")
	FreeDeliveryThreshold = decimal.NewFromInt(1000)
	DeliveryFee           = decimal.NewFromInt(50)
)

type Totals struct {
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	DeliveryCharge decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
}

// CalculateTotals prices an order from its subtotal. Tax is rounded to the
// minor unit; delivery is free only strictly above the threshold.
func CalculateTotals(subtotal, discount decimal.Decimal) Totals {
	tax := subtotal.Mul(TaxRate).Round(2)

	delivery := DeliveryFee
	if subtotal.GreaterThan(FreeDeliveryThreshold) {
		delivery = decimal.Zero
	}

	return Totals{
		Subtotal:       subtotal,
		Tax:            tax,
		DeliveryCharge: delivery,
		Discount:       discount,
		Total:          subtotal.Add(tax).Add(delivery).Sub(discount),
	}
}

// LineSubtotal is unit price times quantity.
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
