// Package ordertest provides an in-memory store for exercising the order
// service without a database.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/customer"
	"github.com/xenking/restaurant-orders/internal/domain/order"
	"github.com/xenking/restaurant-orders/internal/domain/product"
)

type txKey struct{}

type state struct {
	orders  map[int64]order.Order
	lines   map[int64]order.Line
	history []order.StatusChange
	nextID  int64
}

func (s state) clone() state {
	c := state{
		orders:  make(map[int64]order.Order, len(s.orders)),
		lines:   make(map[int64]order.Line, len(s.lines)),
		history: append([]order.StatusChange(nil), s.history...),
		nextID:  s.nextID,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	return c
}

// Store keeps orders, lines and history in memory. Transactions are
// serialized and roll back every write when the callback fails.
type Store struct {
	txMu sync.Mutex

	mu        sync.Mutex
	st        state
	products  map[int64]product.Product
	customers map[int64]struct{}
	failures  map[string]error
	now       func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		st: state{
			orders: map[int64]order.Order{},
			lines:  map[int64]order.Line{},
		},
		products:  map[int64]product.Product{},
		customers: map[int64]struct{}{},
		failures:  map[string]error{},
		now:       time.Now,
	}
}

// AddProduct registers a catalog product.
func (s *Store) AddProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddCustomer registers a customer id.
func (s *Store) AddCustomer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[id] = struct{}{}
}

// SetClock replaces the clock used for CreatedAt and UpdatedAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next call of the named operation return err.
// Operation names have the form "orders.SetTotal" or "lines.Add".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) injected(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func (s *Store) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

// WithinTx implements order.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Orders returns the order header repository.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Lines returns the order line repository.
func (s *Store) Lines() *Lines { return &Lines{s: s} }

// History returns the status history repository.
func (s *Store) History() *History { return &History{s: s} }

// Products returns the catalog repository.
func (s *Store) Products() *Products { return &Products{s: s} }

// Customers returns the customer repository.
func (s *Store) Customers() *Customers { return &Customers{s: s} }

var (
	_ order.Transactor        = (*Store)(nil)
	_ order.Repository        = (*Orders)(nil)
	_ order.LineRepository    = (*Lines)(nil)
	_ order.HistoryRepository = (*History)(nil)
	_ product.Repository      = (*Products)(nil)
	_ customer.Repository     = (*Customers)(nil)
)

// Orders implements order.Repository.
type Orders struct{ s *Store }

func (r *Orders) Create(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("orders.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.st.orders {
		if existing.Number == o.Number {
			return apperr.Conflict("order number %s already exists", o.Number)
		}
	}
	now := r.s.now()
	o.ID = r.s.id()
	o.CreatedAt, o.UpdatedAt = now, now
	r.s.st.orders[o.ID] = *o
	return nil
}

func (r *Orders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r *Orders) get(id int64) (*order.Order, error) {
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return &o, nil
}

func (r *Orders) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if o.Number == number {
			return &o, nil
		}
	}
	return nil, apperr.NotFound("order", number)
}

// LockByID behaves like GetByID; WithinTx already serializes writers.
func (r *Orders) LockByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *Orders) LastNumber(_ context.Context, prefix string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var last string
	for _, o := range r.s.st.orders {
		if !order.IsGeneratedNumber(o.Number, prefix) {
			continue
		}
		if len(o.Number) > len(last) || (len(o.Number) == len(last) && o.Number > last) {
			last = o.Number
		}
	}
	return last, nil
}

func (r *Orders) update(id int64, op string, fn func(o *order.Order)) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected(op); err != nil {
		return nil, err
	}
	o, err := r.get(id)
	if err != nil {
		return nil, err
	}
	fn(o)
	o.UpdatedAt = r.s.now()
	r.s.st.orders[id] = *o
	return o, nil
}

func (r *Orders) UpdateHeader(_ context.Context, id int64, patch order.HeaderPatch) (*order.Order, error) {
	return r.update(id, "orders.UpdateHeader", func(o *order.Order) {
		if patch.TableNumber != nil {
			o.TableNumber = *patch.TableNumber
		}
		if patch.Location != nil {
			o.Location = *patch.Location
		}
		if patch.Notes != nil {
			o.Notes = *patch.Notes
		}
	})
}

func (r *Orders) SetStatus(_ context.Context, id int64, status order.Status) (*order.Order, error) {
	return r.update(id, "orders.SetStatus", func(o *order.Order) { o.Status = status })
}

func (r *Orders) SetTotal(_ context.Context, id int64, total decimal.Decimal) (*order.Order, error) {
	return r.update(id, "orders.SetTotal", func(o *order.Order) { o.Total = total })
}

func (r *Orders) ListActive(_ context.Context) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.st.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Status.Rank(), out[j].Status.Rank(); ri != rj {
			return ri < rj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Orders) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.st.orders {
		switch {
		case f.Status != "" && o.Status != f.Status,
			f.CustomerID != 0 && o.CustomerID != f.CustomerID,
			f.TableNumber != "" && o.TableNumber != f.TableNumber,
			!f.From.IsZero() && o.CreatedAt.Before(f.From),
			!f.Until.IsZero() && !o.CreatedAt.Before(f.Until):
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *Orders) OccupiedTables(_ context.Context) ([]order.TableOccupancy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int{}
	for _, o := range r.s.st.orders {
		if o.TableNumber != "" && !o.Status.Terminal() {
			counts[o.TableNumber]++
		}
	}
	out := make([]order.TableOccupancy, 0, len(counts))
	for table, n := range counts {
		out = append(out, order.TableOccupancy{TableNumber: table, ActiveOrders: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (r *Orders) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.orders[id]; !ok {
		return apperr.NotFound("order", id)
	}
	delete(r.s.st.orders, id)
	for lid, l := range r.s.st.lines {
		if l.OrderID == id {
			delete(r.s.st.lines, lid)
		}
	}
	kept := r.s.st.history[:0]
	for _, c := range r.s.st.history {
		if c.OrderID != id {
			kept = append(kept, c)
		}
	}
	r.s.st.history = kept
	return nil
}

// Lines implements order.LineRepository.
type Lines struct{ s *Store }

func (r *Lines) Add(_ context.Context, l *order.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("lines.Add"); err != nil {
		return err
	}
	if _, ok := r.s.st.orders[l.OrderID]; !ok {
		return apperr.NotFound("order", l.OrderID)
	}
	for _, existing := range r.s.st.lines {
		if existing.OrderID == l.OrderID && existing.ProductID == l.ProductID {
			return apperr.Conflict("product %d is already on order %d", l.ProductID, l.OrderID)
		}
	}
	l.ID = r.s.id()
	l.CreatedAt = r.s.now()
	r.s.st.lines[l.ID] = *l
	return nil
}

func (r *Lines) GetByID(_ context.Context, id int64) (*order.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.st.lines[id]
	if !ok {
		return nil, apperr.NotFound("order line", id)
	}
	return &l, nil
}

func (r *Lines) FindByOrderAndProduct(_ context.Context, orderID, productID int64) (*order.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.st.lines {
		if l.OrderID == orderID && l.ProductID == productID {
			return &l, nil
		}
	}
	return nil, nil
}

func (r *Lines) ListByOrder(_ context.Context, orderID int64) ([]order.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Line
	for _, l := range r.s.st.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Lines) UpdateQuantity(_ context.Context, id int64, quantity int) (*order.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("lines.UpdateQuantity"); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than 0")
	}
	l, ok := r.s.st.lines[id]
	if !ok {
		return nil, apperr.NotFound("order line", id)
	}
	l.Quantity = quantity
	l.Subtotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	r.s.st.lines[id] = l
	return &l, nil
}

func (r *Lines) UpdateNotes(_ context.Context, id int64, notes string) (*order.Line, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.st.lines[id]
	if !ok {
		return nil, apperr.NotFound("order line", id)
	}
	l.Notes = notes
	r.s.st.lines[id] = l
	return &l, nil
}

func (r *Lines) Remove(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("lines.Remove"); err != nil {
		return err
	}
	if _, ok := r.s.st.lines[id]; !ok {
		return apperr.NotFound("order line", id)
	}
	delete(r.s.st.lines, id)
	return nil
}

func (r *Lines) SumByOrder(_ context.Context, orderID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := decimal.Zero
	for _, l := range r.s.st.lines {
		if l.OrderID == orderID {
			total = total.Add(l.Subtotal)
		}
	}
	return total, nil
}

// History implements order.HistoryRepository.
type History struct{ s *Store }

func (r *History) Record(_ context.Context, c *order.StatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("history.Record"); err != nil {
		return err
	}
	c.ID = r.s.id()
	c.ChangedAt = r.s.now()
	r.s.st.history = append(r.s.st.history, *c)
	return nil
}

func (r *History) ListByOrder(_ context.Context, orderID int64) ([]order.StatusChange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.StatusChange
	for _, c := range r.s.st.history {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Products implements product.Repository.
type Products struct{ s *Store }

func (r *Products) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return &p, nil
}

// Customers implements customer.Repository.
type Customers struct{ s *Store }

func (r *Customers) Exists(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.customers[id]
	return ok, nil
}
