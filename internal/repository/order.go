package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

const orderColumns = `id, customer_id, order_number, table_number, location, total, status, notes, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (customer_id, order_number, table_number, location, total, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	lastOrderNumberSQL = `SELECT order_number FROM orders
		WHERE order_number LIKE $1 || '%'
			AND substr(order_number, length($1) + 1) ~ '^[0-9]+$'
		ORDER BY length(order_number) DESC, order_number DESC
		LIMIT 1`

	updateOrderHeaderSQL = `UPDATE orders SET
			table_number = COALESCE($2, table_number),
			location = COALESCE($3, location),
			notes = COALESCE($4, notes),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	setOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	setOrderTotalSQL = `UPDATE orders SET total = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	listActiveOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ('delivered', 'cancelled')
		ORDER BY CASE status
			WHEN 'pending' THEN 1
			WHEN 'preparing' THEN 2
			WHEN 'ready' THEN 3
			ELSE 4
		END, created_at, id`

	// Unset filters are passed as NULL.
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE (@status::text IS NULL OR status = @status)
			AND (@customer_id::bigint IS NULL OR customer_id = @customer_id)
			AND (@table_number::text IS NULL OR table_number = @table_number)
			AND (@from::timestamptz IS NULL OR created_at >= @from)
			AND (@until::timestamptz IS NULL OR created_at < @until)
		ORDER BY created_at DESC, id DESC
		LIMIT @limit OFFSET @offset`

	occupiedTablesSQL = `SELECT table_number, count(*) FROM orders
		WHERE status NOT IN ('delivered', 'cancelled') AND table_number <> ''
		GROUP BY table_number
		ORDER BY table_number`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the header and fills in the generated id and timestamps.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createOrderSQL,
		o.CustomerID, o.Number, o.TableNumber, o.Location, o.Total, o.Status, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return classify(err, "create order")
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.one(ctx, "get order", id, getOrderByIDSQL, id)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.one(ctx, "get order by number", number, getOrderByNumberSQL, number)
}

// LockByID must run inside WithinTx; outside a transaction the lock is
// released as soon as the statement completes.
func (r *OrderRepository) LockByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.one(ctx, "lock order", id, lockOrderSQL, id)
}

func (r *OrderRepository) LastNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := conn(ctx, r.pool).QueryRow(ctx, lastOrderNumberSQL, prefix).Scan(&number)
	switch {
	case err == nil:
		return number, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", nil
	default:
		return "", classify(err, "get last order number")
	}
}

func (r *OrderRepository) UpdateHeader(ctx context.Context, id int64, patch order.HeaderPatch) (*order.Order, error) {
	return r.one(ctx, "update order header", id, updateOrderHeaderSQL,
		id, patch.TableNumber, patch.Location, patch.Notes,
	)
}

// SetStatus writes the status without checking the transition.
func (r *OrderRepository) SetStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	return r.one(ctx, "set order status", id, setOrderStatusSQL, id, status)
}

func (r *OrderRepository) SetTotal(ctx context.Context, id int64, total decimal.Decimal) (*order.Order, error) {
	return r.one(ctx, "set order total", id, setOrderTotalSQL, id, total)
}

func (r *OrderRepository) ListActive(ctx context.Context) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listActiveOrdersSQL)
	if err != nil {
		return nil, classify(err, "list active orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, classify(err, "list active orders")
	}
	return orders, nil
}

func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersSQL, pgx.NamedArgs{
		"status":       nullIfZero(string(f.Status)),
		"customer_id":  nullIfZero(f.CustomerID),
		"table_number": nullIfZero(f.TableNumber),
		"from":         nullIfZeroTime(f.From),
		"until":        nullIfZeroTime(f.Until),
		"limit":        f.Limit,
		"offset":       f.Offset,
	})
	if err != nil {
		return nil, classify(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, classify(err, "list orders")
	}
	return orders, nil
}

func (r *OrderRepository) OccupiedTables(ctx context.Context) ([]order.TableOccupancy, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, occupiedTablesSQL)
	if err != nil {
		return nil, classify(err, "list occupied tables")
	}
	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.TableOccupancy, error) {
		var t order.TableOccupancy
		err := row.Scan(&t.TableNumber, &t.ActiveOrders)
		return t, err
	})
	if err != nil {
		return nil, classify(err, "list occupied tables")
	}
	return tables, nil
}

func nullIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func nullIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Delete removes the header. Lines and history are removed by cascade.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return classify(err, "delete order")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id)
	}
	return nil
}

func (r *OrderRepository) one(ctx context.Context, op string, key any, sql string, args ...any) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return nil, notFound(err, "order", key, op)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Number, &o.TableNumber, &o.Location,
		&o.Total, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
