package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

const lineColumns = `id, order_id, product_id, quantity, unit_price, subtotal, notes, created_at`

const (
	addLineSQL = `INSERT INTO order_lines (order_id, product_id, quantity, unit_price, subtotal, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	getLineByIDSQL = `SELECT ` + lineColumns + ` FROM order_lines WHERE id = $1`

	findLineSQL = `SELECT ` + lineColumns + ` FROM order_lines WHERE order_id = $1 AND product_id = $2`

	listLinesSQL = `SELECT ` + lineColumns + ` FROM order_lines WHERE order_id = $1 ORDER BY id`

	updateLineQuantitySQL = `UPDATE order_lines SET quantity = $2, subtotal = unit_price * $2
		WHERE id = $1
		RETURNING ` + lineColumns

	updateLineNotesSQL = `UPDATE order_lines SET notes = $2
		WHERE id = $1
		RETURNING ` + lineColumns

	removeLineSQL = `DELETE FROM order_lines WHERE id = $1`

	sumLinesSQL = `SELECT COALESCE(SUM(subtotal), 0) FROM order_lines WHERE order_id = $1`
)

var _ order.LineRepository = (*LineRepository)(nil)

// LineRepository implements order.LineRepository backed by PostgreSQL.
type LineRepository struct {
	pool *pgxpool.Pool
}

// NewLineRepository returns a LineRepository that uses the given pool.
func NewLineRepository(pool *pgxpool.Pool) *LineRepository {
	return &LineRepository{pool: pool}
}

// Add inserts the line as given. Callers merge duplicates beforehand; a
// second line for the same product is rejected by a unique constraint.
func (r *LineRepository) Add(ctx context.Context, l *order.Line) error {
	err := conn(ctx, r.pool).QueryRow(ctx, addLineSQL,
		l.OrderID, l.ProductID, l.Quantity, l.UnitPrice, l.Subtotal, l.Notes,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return classify(err, "add order line")
	}
	return nil
}

func (r *LineRepository) GetByID(ctx context.Context, id int64) (*order.Line, error) {
	return r.one(ctx, "get order line", id, getLineByIDSQL, id)
}

func (r *LineRepository) FindByOrderAndProduct(ctx context.Context, orderID, productID int64) (*order.Line, error) {
	l, err := r.one(ctx, "find order line", productID, findLineSQL, orderID, productID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return l, err
}

func (r *LineRepository) ListByOrder(ctx context.Context, orderID int64) ([]order.Line, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listLinesSQL, orderID)
	if err != nil {
		return nil, classify(err, "list order lines")
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, classify(err, "list order lines")
	}
	return lines, nil
}

// UpdateQuantity sets the quantity and recomputes the subtotal from the
// stored unit price in the same statement.
func (r *LineRepository) UpdateQuantity(ctx context.Context, id int64, quantity int) (*order.Line, error) {
	if quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than 0")
	}
	return r.one(ctx, "update order line quantity", id, updateLineQuantitySQL, id, quantity)
}

func (r *LineRepository) UpdateNotes(ctx context.Context, id int64, notes string) (*order.Line, error) {
	return r.one(ctx, "update order line notes", id, updateLineNotesSQL, id, notes)
}

func (r *LineRepository) Remove(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, removeLineSQL, id)
	if err != nil {
		return classify(err, "remove order line")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order line", id)
	}
	return nil
}

// SumByOrder returns the sum of the line subtotals, zero for an order
// without lines.
func (r *LineRepository) SumByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := conn(ctx, r.pool).QueryRow(ctx, sumLinesSQL, orderID).Scan(&total); err != nil {
		return decimal.Zero, classify(err, "sum order lines")
	}
	return total, nil
}

func (r *LineRepository) one(ctx context.Context, op string, key any, sql string, args ...any) (*order.Line, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		return nil, notFound(err, "order line", key, op)
	}
	return &l, nil
}

func scanLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.Quantity,
		&l.UnitPrice, &l.Subtotal, &l.Notes, &l.CreatedAt,
	)
	return l, err
}
