// Package customer describes the customer directory consumed by the order
// aggregate.
package customer

import "context"

// Repository answers whether a customer exists.
type Repository interface {
	Exists(ctx context.Context, id int64) (bool, error)
}
