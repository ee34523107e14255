package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/customer"
	"github.com/xenking/restaurant-orders/internal/domain/product"
)

const instrumentationName = "github.com/xenking/restaurant-orders/internal/domain/order"

// LineInput describes a product to add to an order. When UnitPrice is not
// set the current catalog price is captured.
type LineInput struct {
	ProductID int64               `json:"product_id" validate:"required,gt=0"`
	Quantity  int                 `json:"quantity" validate:"gt=0,lte=10000"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	Notes     string              `json:"notes"`
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	CustomerID  int64       `json:"customer_id" validate:"required,gt=0"`
	Number      string      `json:"order_number" validate:"max=32"`
	TableNumber string      `json:"table_number" validate:"max=10"`
	Location    string      `json:"location" validate:"max=100"`
	Notes       string      `json:"notes"`
	Lines       []LineInput `json:"lines" validate:"dive"`
}

// LineResult is the outcome of a line mutation together with the
// recomputed order total.
type LineResult struct {
	Line       Line
	OrderTotal decimal.Decimal
	// Merged is set when the product was already on the order and its
	// quantity was increased instead of adding a line.
	Merged bool
}

type options struct {
	now func() time.Time
	tp  trace.TracerProvider
	mp  metric.MeterProvider
}

// Option configures a Service.
type Option func(*options)

// WithClock overrides the time source used for order numbers.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTracerProvider sets the tracer provider. Defaults to a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider sets the meter provider. Defaults to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// Service is the order aggregate. It is the only component that mutates
// headers and lines together, and every mutation runs in one transaction.
type Service struct {
	tx        Transactor
	orders    Repository
	lines     LineRepository
	history   HistoryRepository
	products  product.Repository
	customers customer.Repository

	now           func() time.Time
	tracer        trace.Tracer
	transitions   metric.Int64Counter
	lineMutations metric.Int64Counter
}

// NewService creates an order Service with the required dependencies.
func NewService(
	tx Transactor,
	orders Repository,
	lines LineRepository,
	history HistoryRepository,
	products product.Repository,
	customers customer.Repository,
	opts ...Option,
) *Service {
	o := options{
		now: time.Now,
		tp:  tracenoop.NewTracerProvider(),
		mp:  metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.mp.Meter(instrumentationName)
	transitions, err := meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Order status changes"),
	)
	if err != nil {
		transitions = metricnoop.Int64Counter{}
	}
	lineMutations, err := meter.Int64Counter("orders.line.mutations",
		metric.WithDescription("Order line additions, merges, updates and removals"),
	)
	if err != nil {
		lineMutations = metricnoop.Int64Counter{}
	}

	return &Service{
		tx:            tx,
		orders:        orders,
		lines:         lines,
		history:       history,
		products:      products,
		customers:     customers,
		now:           o.now,
		tracer:        o.tp.Tracer(instrumentationName),
		transitions:   transitions,
		lineMutations: lineMutations,
	}
}

// CreateOrder creates a pending order, generating its number when none is
// supplied, and adds the initial lines one by one so duplicate products merge.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer func() { endSpan(span, err) }()

	if err := validateInput(req); err != nil {
		return nil, err
	}

	var created *Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.customers.Exists(ctx, req.CustomerID)
		if err != nil {
			return errors.Wrap(err, "check customer")
		}
		if !ok {
			return apperr.NotFound("customer", req.CustomerID)
		}

		number := req.Number
		if number == "" {
			now := s.now()
			last, err := s.orders.LastNumber(ctx, NumberPrefix(now))
			if err != nil {
				return errors.Wrap(err, "get last order number")
			}
			number = NextNumber(last, now)
		}

		o := &Order{
			CustomerID:  req.CustomerID,
			Number:      number,
			TableNumber: req.TableNumber,
			Location:    req.Location,
			Notes:       req.Notes,
			Total:       decimal.Zero,
			Status:      StatusPending,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.history.Record(ctx, &StatusChange{
			OrderID: o.ID,
			To:      StatusPending,
			Note:    "order created",
		}); err != nil {
			return errors.Wrap(err, "record status")
		}

		for i, in := range req.Lines {
			if _, err := s.addLine(ctx, o, in); err != nil {
				return errors.Wrapf(err, "add line %d", i)
			}
		}

		created, err = s.orders.GetByID(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", created.ID),
		zap.String("number", created.Number),
		zap.Int("lines", len(req.Lines)),
	)
	return created, nil
}

// GetOrder returns the order header and its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Details, error) {
	var (
		o     *Order
		lines []Line
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if o, err = s.orders.GetByID(gctx, id); err != nil {
			return errors.Wrap(err, "get order")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if lines, err = s.lines.ListByOrder(gctx, id); err != nil {
			return errors.Wrap(err, "list lines")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Details{Order: *o, Lines: lines}, nil
}

// GetOrderByNumber returns the order with the given number and its lines.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*Details, error) {
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	lines, err := s.lines.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	return &Details{Order: *o, Lines: lines}, nil
}

// ListActive returns the orders the kitchen still has to handle.
func (s *Service) ListActive(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active orders")
	}
	return orders, nil
}

const (
	defaultListLimit     = 50
	defaultCustomerLimit = 10
)

// ListOrders returns the orders matching f, newest first. Limit defaults
// to 50 and is capped at 200.
func (s *Service) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	if err := validateInput(f); err != nil {
		return nil, err
	}
	if !f.From.IsZero() && !f.Until.IsZero() && !f.From.Before(f.Until) {
		return nil, apperr.Validation("from must be before to")
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}

	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// CustomerOrders returns the most recent orders of a customer. Limit
// defaults to 10.
func (s *Service) CustomerOrders(ctx context.Context, customerID int64, limit int) ([]Order, error) {
	ok, err := s.customers.Exists(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "check customer")
	}
	if !ok {
		return nil, apperr.NotFound("customer", customerID)
	}
	if limit == 0 {
		limit = defaultCustomerLimit
	}
	return s.ListOrders(ctx, ListFilter{CustomerID: customerID, Limit: limit})
}

// OccupiedTables returns the tables that still have orders in progress.
func (s *Service) OccupiedTables(ctx context.Context) ([]TableOccupancy, error) {
	tables, err := s.orders.OccupiedTables(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list occupied tables")
	}
	return tables, nil
}

// History returns the status changes of an order, oldest first.
func (s *Service) History(ctx context.Context, id int64) ([]StatusChange, error) {
	if _, err := s.orders.GetByID(ctx, id); err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	changes, err := s.history.ListByOrder(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list status history")
	}
	return changes, nil
}

// UpdateHeader updates the supplied header fields of a non-terminal order.
func (s *Service) UpdateHeader(ctx context.Context, id int64, patch HeaderPatch) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateHeader", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, err) }()

	if patch.Empty() {
		return nil, apperr.Validation("no fields to update")
	}
	if err := validateInput(patch); err != nil {
		return nil, err
	}

	var updated *Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockMutable(ctx, id); err != nil {
			return err
		}
		updated, err = s.orders.UpdateHeader(ctx, id, patch)
		if err != nil {
			return errors.Wrap(err, "update header")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteOrder removes the order; its lines and history go with it.
func (s *Service) DeleteOrder(ctx context.Context, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "order.DeleteOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, err) }()

	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}
	zctx.From(ctx).Info("Order deleted", zap.Int64("order_id", id))
	return nil
}

// AddProduct adds a product to a non-terminal order. When the product is
// already on the order the existing line's quantity is increased instead.
func (s *Service) AddProduct(ctx context.Context, orderID int64, in LineInput) (_ *LineResult, err error) {
	ctx, span := s.tracer.Start(ctx, "order.AddProduct", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("product.id", in.ProductID),
	))
	defer func() { endSpan(span, err) }()

	var res *LineResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.lockMutable(ctx, orderID)
		if err != nil {
			return err
		}
		res, err = s.addLine(ctx, o, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	op := "add"
	if res.Merged {
		op = "merge"
	}
	s.lineMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	return res, nil
}

// UpdateLineQuantity sets the quantity of a line and recomputes the order total.
func (s *Service) UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) (_ *LineResult, err error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateLineQuantity", trace.WithAttributes(attribute.Int64("line.id", lineID)))
	defer func() { endSpan(span, err) }()

	var res *LineResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		line, err := s.lockLine(ctx, lineID)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			return apperr.Validation("quantity must be greater than 0")
		}
		if err := checkLine(line.UnitPrice, quantity); err != nil {
			return err
		}

		updated, err := s.lines.UpdateQuantity(ctx, line.ID, quantity)
		if err != nil {
			return errors.Wrap(err, "update quantity")
		}
		total, err := s.recalculate(ctx, line.OrderID)
		if err != nil {
			return err
		}
		res = &LineResult{Line: *updated, OrderTotal: total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lineMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "update")))
	return res, nil
}

// UpdateLineNotes replaces the notes of a line.
func (s *Service) UpdateLineNotes(ctx context.Context, lineID int64, notes string) (*Line, error) {
	var updated *Line
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		line, err := s.lockLine(ctx, lineID)
		if err != nil {
			return err
		}
		updated, err = s.lines.UpdateNotes(ctx, line.ID, notes)
		if err != nil {
			return errors.Wrap(err, "update notes")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveProduct deletes a line and returns the recomputed order total.
func (s *Service) RemoveProduct(ctx context.Context, lineID int64) (_ decimal.Decimal, err error) {
	ctx, span := s.tracer.Start(ctx, "order.RemoveProduct", trace.WithAttributes(attribute.Int64("line.id", lineID)))
	defer func() { endSpan(span, err) }()

	var total decimal.Decimal
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		line, err := s.lockLine(ctx, lineID)
		if err != nil {
			return err
		}
		if err := s.lines.Remove(ctx, line.ID); err != nil {
			return errors.Wrap(err, "remove line")
		}
		total, err = s.recalculate(ctx, line.OrderID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.lineMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "remove")))
	return total, nil
}

// ChangeStatus moves the order to next if the transition is legal.
func (s *Service) ChangeStatus(ctx context.Context, id int64, next Status) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.ChangeStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status", string(next)),
	))
	defer func() { endSpan(span, err) }()

	if _, err := ParseStatus(string(next)); err != nil {
		return nil, err
	}

	var (
		updated *Order
		prev    Status
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.LockByID(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		prev = o.Status
		updated, err = s.transition(ctx, o, next, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(ctx, updated, prev)
	return updated, nil
}

// Cancel cancels a non-terminal order. Unlike ChangeStatus it reports
// delivered and already cancelled orders with dedicated conflict messages.
func (s *Service) Cancel(ctx context.Context, id int64) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, err) }()

	var (
		updated *Order
		prev    Status
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.LockByID(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		switch o.Status {
		case StatusDelivered:
			return apperr.Conflict("cannot cancel a delivered order")
		case StatusCancelled:
			return apperr.Conflict("order is already cancelled")
		}
		prev = o.Status
		updated, err = s.transition(ctx, o, StatusCancelled, "order cancelled")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.statusChanged(ctx, updated, prev)
	return updated, nil
}

// transition writes the new status and its history entry. o must be locked.
func (s *Service) transition(ctx context.Context, o *Order, next Status, note string) (*Order, error) {
	if o.Status.Terminal() {
		return nil, apperr.Conflict("order %s is already %s", o.Number, o.Status)
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, apperr.Validation("illegal status transition %s -> %s", o.Status, next)
	}

	updated, err := s.orders.SetStatus(ctx, o.ID, next)
	if err != nil {
		return nil, errors.Wrap(err, "set status")
	}

	if note == "" {
		note = fmt.Sprintf("status changed from %s to %s", o.Status, next)
	}
	if err := s.history.Record(ctx, &StatusChange{
		OrderID: o.ID,
		From:    o.Status,
		To:      next,
		Note:    note,
	}); err != nil {
		return nil, errors.Wrap(err, "record status")
	}
	return updated, nil
}

func (s *Service) statusChanged(ctx context.Context, o *Order, prev Status) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(o.Status))))
	zctx.From(ctx).Info("Order status changed",
		zap.Int64("order_id", o.ID),
		zap.String("number", o.Number),
		zap.Stringer("from", prev),
		zap.Stringer("to", o.Status),
	)
}

// addLine merges or inserts a line and rewrites the order total. o must be
// locked and non-terminal.
func (s *Service) addLine(ctx context.Context, o *Order, in LineInput) (*LineResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.UnitPrice.Valid {
		if err := checkPrice(in.UnitPrice.Decimal); err != nil {
			return nil, err
		}
	}

	p, err := s.products.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Available {
		return nil, apperr.Validation("product %d is not available", p.ID)
	}
	price := p.Price
	if in.UnitPrice.Valid {
		price = in.UnitPrice.Decimal
	}
	if err := checkPrice(price); err != nil {
		return nil, apperr.Validation("product %d: %s", p.ID, apperr.Message(err))
	}

	existing, err := s.lines.FindByOrderAndProduct(ctx, o.ID, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "find line")
	}

	var line *Line
	if existing != nil {
		// The existing line keeps its price snapshot.
		quantity := existing.Quantity + in.Quantity
		if err := checkLine(existing.UnitPrice, quantity); err != nil {
			return nil, err
		}
		line, err = s.lines.UpdateQuantity(ctx, existing.ID, quantity)
		if err != nil {
			return nil, errors.Wrap(err, "merge line")
		}
	} else {
		if err := checkLine(price, in.Quantity); err != nil {
			return nil, err
		}
		line = &Line{
			OrderID:   o.ID,
			ProductID: p.ID,
			Quantity:  in.Quantity,
			UnitPrice: price,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(in.Quantity))),
			Notes:     in.Notes,
		}
		if err := s.lines.Add(ctx, line); err != nil {
			return nil, errors.Wrap(err, "add line")
		}
	}

	total, err := s.recalculate(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &LineResult{Line: *line, OrderTotal: total, Merged: existing != nil}, nil
}

// recalculate writes the sum of the line subtotals into the order header.
func (s *Service) recalculate(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	total, err := s.lines.SumByOrder(ctx, orderID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum lines")
	}
	if total.GreaterThan(maxAmount) {
		return decimal.Zero, apperr.Validation("order total would exceed %s", maxAmount.StringFixed(2))
	}
	if _, err := s.orders.SetTotal(ctx, orderID, total); err != nil {
		return decimal.Zero, errors.Wrap(err, "set total")
	}
	return total, nil
}

// lockMutable locks the order row and rejects terminal orders.
func (s *Service) lockMutable(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.LockByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	if o.Status.Terminal() {
		return nil, apperr.Conflict("order %s is %s and can no longer be modified", o.Number, o.Status)
	}
	return o, nil
}

// lockLine locks the parent order of a line, rejects terminal orders and
// returns the line as seen under the lock.
func (s *Service) lockLine(ctx context.Context, lineID int64) (*Line, error) {
	line, err := s.lines.GetByID(ctx, lineID)
	if err != nil {
		return nil, errors.Wrap(err, "get line")
	}
	if _, err := s.lockMutable(ctx, line.OrderID); err != nil {
		return nil, err
	}
	line, err = s.lines.GetByID(ctx, lineID)
	if err != nil {
		return nil, errors.Wrap(err, "get line")
	}
	return line, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
