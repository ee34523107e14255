package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/restaurant-orders/internal/domain/customer"
)

const customerExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository over the users table.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := conn(ctx, r.pool).QueryRow(ctx, customerExistsSQL, id).Scan(&ok); err != nil {
		return false, classify(err, "check customer")
	}
	return ok, nil
}
