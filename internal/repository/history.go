package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/restaurant-orders/internal/domain/order"
)

const (
	recordStatusSQL = `INSERT INTO order_status_history (order_id, from_status, to_status, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, changed_at`

	listStatusHistorySQL = `SELECT id, order_id, from_status, to_status, note, changed_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`
)

var _ order.HistoryRepository = (*HistoryRepository)(nil)

// HistoryRepository implements order.HistoryRepository backed by PostgreSQL.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository returns a HistoryRepository that uses the given pool.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Record(ctx context.Context, c *order.StatusChange) error {
	err := conn(ctx, r.pool).QueryRow(ctx, recordStatusSQL,
		c.OrderID, c.From, c.To, c.Note,
	).Scan(&c.ID, &c.ChangedAt)
	if err != nil {
		return classify(err, "record status change")
	}
	return nil
}

func (r *HistoryRepository) ListByOrder(ctx context.Context, orderID int64) ([]order.StatusChange, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listStatusHistorySQL, orderID)
	if err != nil {
		return nil, classify(err, "list status history")
	}
	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusChange, error) {
		var c order.StatusChange
		err := row.Scan(&c.ID, &c.OrderID, &c.From, &c.To, &c.Note, &c.ChangedAt)
		return c, err
	})
	if err != nil {
		return nil, classify(err, "list status history")
	}
	return changes, nil
}
