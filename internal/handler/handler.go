// Package handler exposes the order service as a JSON-over-HTTP API.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/restaurant-orders/internal/domain/order"
)

// PathPrefix is the prefix every API route is mounted under.
const PathPrefix = "/api"

// OrderService is the subset of order.Service the handler depends on.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id int64) (*order.Details, error)
	GetOrderByNumber(ctx context.Context, number string) (*order.Details, error)
	ListActive(ctx context.Context) ([]order.Order, error)
	ListOrders(ctx context.Context, f order.ListFilter) ([]order.Order, error)
	CustomerOrders(ctx context.Context, customerID int64, limit int) ([]order.Order, error)
	OccupiedTables(ctx context.Context) ([]order.TableOccupancy, error)
	History(ctx context.Context, id int64) ([]order.StatusChange, error)
	UpdateHeader(ctx context.Context, id int64, patch order.HeaderPatch) (*order.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	AddProduct(ctx context.Context, orderID int64, in order.LineInput) (*order.LineResult, error)
	UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) (*order.LineResult, error)
	UpdateLineNotes(ctx context.Context, lineID int64, notes string) (*order.Line, error)
	RemoveProduct(ctx context.Context, lineID int64) (decimal.Decimal, error)
	ChangeStatus(ctx context.Context, id int64, next order.Status) (*order.Order, error)
	Cancel(ctx context.Context, id int64) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Handler routes API requests to the order service.
type Handler struct {
	orders OrderService
	mux    *http.ServeMux
}

// New constructs a Handler and registers its routes.
func New(orders OrderService) *Handler {
	h := &Handler{
		orders: orders,
		mux:    http.NewServeMux(),
	}

	h.route("POST /orders", h.createOrder)
	h.route("GET /orders", h.listOrders)
	h.route("GET /orders/active", h.listActive)
	h.route("GET /orders/tables/occupied", h.occupiedTables)
	h.route("GET /orders/number/{number}", h.getOrderByNumber)
	h.route("GET /orders/{id}", h.getOrder)
	h.route("PATCH /orders/{id}", h.updateHeader)
	h.route("DELETE /orders/{id}", h.deleteOrder)
	h.route("GET /orders/{id}/history", h.history)
	h.route("POST /orders/{id}/products", h.addProduct)
	h.route("PATCH /orders/{id}/status", h.changeStatus)
	h.route("PATCH /orders/{id}/cancel", h.cancel)
	h.route("GET /customers/{id}/orders", h.customerOrders)
	h.route("PATCH /order-lines/{id}/quantity", h.updateLineQuantity)
	h.route("PATCH /order-lines/{id}/notes", h.updateLineNotes)
	h.route("DELETE /order-lines/{id}", h.removeLine)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// route registers fn under PathPrefix and labels the span and metrics of
// the request with the route pattern.
func (h *Handler) route(pattern string, fn http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	full := method + " " + PathPrefix + path
	route := PathPrefix + path

	h.mux.HandleFunc(full, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		trace.SpanFromContext(ctx).SetName(method + " " + route)
		if labeler, ok := otelhttp.LabelerFromContext(ctx); ok {
			labeler.Add(attribute.String("http.route", route))
		}
		fn(w, r)
	})
}
