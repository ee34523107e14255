package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a catalog item that can be ordered.
type Product struct {
	ID         int64
	CategoryID int64
	Name       string
	Price      decimal.Decimal
	Available  bool
}

// Repository answers catalog lookups for the order aggregate. GetByID
// returns an apperr not-found error when the product does not exist.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
}
