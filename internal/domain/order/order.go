package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the order header. Total is the denormalized sum of its lines'
// subtotals and is only written by Service.
type Order struct {
	ID          int64
	CustomerID  int64
	Number      string
	TableNumber string
	Location    string
	Total       decimal.Decimal
	Status      Status
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Line is one product entry of an order. UnitPrice is captured when the
// line is added and Subtotal always equals Quantity * UnitPrice.
type Line struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
	Notes     string
	CreatedAt time.Time
}

// StatusChange is one entry of an order's status history. From is empty for
// the entry recorded at creation.
type StatusChange struct {
	ID        int64
	OrderID   int64
	From      Status
	To        Status
	Note      string
	ChangedAt time.Time
}

// Details is an order header together with its lines.
type Details struct {
	Order Order
	Lines []Line
}

// HeaderPatch holds the optional header fields of an update. Nil fields are
// left untouched.
type HeaderPatch struct {
	TableNumber *string `json:"table_number" validate:"omitempty,max=10"`
	Location    *string `json:"location" validate:"omitempty,max=100"`
	Notes       *string `json:"notes"`
}

// Empty reports whether the patch carries no field.
func (p HeaderPatch) Empty() bool {
	return p.TableNumber == nil && p.Location == nil && p.Notes == nil
}

// ListFilter selects orders for List. Zero fields do not filter. From is
// inclusive and Until exclusive; both compare against CreatedAt.
type ListFilter struct {
	Status      Status    `json:"status"`
	CustomerID  int64     `json:"customer_id" validate:"gte=0"`
	TableNumber string    `json:"table_number" validate:"max=10"`
	From        time.Time `json:"from"`
	Until       time.Time `json:"to"`
	Limit       int       `json:"limit" validate:"gte=0,lte=200"`
	Offset      int       `json:"offset" validate:"gte=0"`
}

// TableOccupancy is a table with orders the kitchen is still handling.
type TableOccupancy struct {
	TableNumber  string
	ActiveOrders int
}

// Transactor runs fn inside a single transaction. Repository calls made
// with the context passed to fn join that transaction; the transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository persists order headers.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// LockByID loads the header and holds a row lock on it until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id int64) (*Order, error)
	// LastNumber returns the highest generated order number for prefix
	// (prefix followed by digits only), or an empty string when none was
	// issued.
	LastNumber(ctx context.Context, prefix string) (string, error)
	UpdateHeader(ctx context.Context, id int64, patch HeaderPatch) (*Order, error)
	SetStatus(ctx context.Context, id int64, status Status) (*Order, error)
	SetTotal(ctx context.Context, id int64, total decimal.Decimal) (*Order, error)
	// ListActive returns non-terminal orders, pending first, then preparing,
	// then ready; oldest first within a status.
	ListActive(ctx context.Context) ([]Order, error)
	// List returns orders matching f, newest first.
	List(ctx context.Context, f ListFilter) ([]Order, error)
	// OccupiedTables returns tables with non-terminal orders, by table number.
	OccupiedTables(ctx context.Context) ([]TableOccupancy, error)
	Delete(ctx context.Context, id int64) error
}

// LineRepository persists order lines.
type LineRepository interface {
	Add(ctx context.Context, l *Line) error
	GetByID(ctx context.Context, id int64) (*Line, error)
	// FindByOrderAndProduct returns nil without error when the order has no
	// line for the product.
	FindByOrderAndProduct(ctx context.Context, orderID, productID int64) (*Line, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Line, error)
	UpdateQuantity(ctx context.Context, id int64, quantity int) (*Line, error)
	UpdateNotes(ctx context.Context, id int64, notes string) (*Line, error)
	Remove(ctx context.Context, id int64) error
	SumByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

// HistoryRepository persists status changes.
type HistoryRepository interface {
	Record(ctx context.Context, c *StatusChange) error
	ListByOrder(ctx context.Context, orderID int64) ([]StatusChange, error)
}
