package payment

import (
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/shopspring/decimal"
)

// RequiresGateway reports whether method is settled online and therefore
// needs a gateway order at placement.
func RequiresGateway(method models.PaymentMethod) bool {
	switch method {
	case models.PaymentMethodCard, models.PaymentMethodUPI:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts an amount to the currency's smallest unit (paise).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
