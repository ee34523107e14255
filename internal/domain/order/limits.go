package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// MaxLineQuantity caps the quantity of a single order line.
const MaxLineQuantity = 10_000

// Money is stored with two decimal places: unit prices as NUMERIC(10,2),
// subtotals and totals as NUMERIC(12,2).
var (
	maxUnitPrice = decimal.RequireFromString("99999999.99")
	maxAmount    = decimal.RequireFromString("9999999999.99")
)

// checkPrice rejects unit prices the store would round or overflow.
func checkPrice(price decimal.Decimal) error {
	switch {
	case !price.IsPositive():
		return apperr.Validation("unit_price must be greater than 0")
	case !price.Equal(price.Truncate(2)):
		return apperr.Validation("unit_price must have at most 2 decimal places")
	case price.GreaterThan(maxUnitPrice):
		return apperr.Validation("unit_price must be at most %s", maxUnitPrice.StringFixed(2))
	}
	return nil
}

// checkLine rejects a quantity above MaxLineQuantity or a subtotal the
// store cannot hold.
func checkLine(price decimal.Decimal, quantity int) error {
	if quantity > MaxLineQuantity {
		return apperr.Validation("quantity must be at most %d", MaxLineQuantity)
	}
	if price.Mul(decimal.NewFromInt(int64(quantity))).GreaterThan(maxAmount) {
		return apperr.Validation("line subtotal would exceed %s", maxAmount.StringFixed(2))
	}
	return nil
}
