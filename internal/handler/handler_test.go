package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/restaurant-orders/internal/domain/order"
	"github.com/xenking/restaurant-orders/internal/domain/order/ordertest"
	"github.com/xenking/restaurant-orders/internal/domain/product"
)

// Response types, decoded with encoding/json to check the wire format
// independently of the encoder.

type orderBody struct {
	ID          int64       `json:"id"`
	CustomerID  int64       `json:"customer_id"`
	OrderNumber string      `json:"order_number"`
	TableNumber string      `json:"table_number"`
	Total       json.Number `json:"total"`
	Status      string      `json:"status"`
	Notes       string      `json:"notes"`
}

type lineBody struct {
	ID        int64       `json:"id"`
	ProductID int64       `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unit_price"`
	Subtotal  json.Number `json:"subtotal"`
	Notes     string      `json:"notes"`
}

type orderEnvelope struct {
	Order orderBody  `json:"order"`
	Lines []lineBody `json:"lines"`
}

type lineEnvelope struct {
	Line       lineBody    `json:"line"`
	OrderTotal json.Number `json:"order_total"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type historyEntry struct {
	PreviousStatus *string `json:"previous_status"`
	NewStatus      string  `json:"new_status"`
	Note           string  `json:"note"`
}

// --- Helpers ---

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	st := ordertest.NewStore()
	st.AddCustomer(1)
	st.AddProduct(product.Product{ID: 10, Name: "Lomo saltado", Price: decimal.RequireFromString("12.00"), Available: true})
	st.AddProduct(product.Product{ID: 11, Name: "Chicha morada", Price: decimal.RequireFromString("3.50"), Available: true})

	svc := order.NewService(st, st.Orders(), st.Lines(), st.History(), st.Products(), st.Customers())
	return New(svc)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createOrder(t *testing.T, h http.Handler, body string) orderBody {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[orderEnvelope](t, w).Order
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) errorBody {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode[errorBody](t, w)
	assert.Equal(t, status, body.Code)
	assert.Equal(t, kind, body.Kind)
	return body
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	h := newTestHandler(t)

	o := createOrder(t, h, `{"customer_id": 1, "table_number": "5", "lines": [
		{"product_id": 10, "quantity": 2},
		{"product_id": 11, "quantity": 1, "unit_price": 0.01}
	]}`)

	assert.Equal(t, "pending", o.Status)
	assert.Equal(t, "5", o.TableNumber)
	assert.Equal(t, "27.50", o.Total.String())
	assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed", `{"customer_id": `, http.StatusBadRequest, "validation"},
		{"not an object", `[1, 2]`, http.StatusBadRequest, "validation"},
		{"missing customer", `{}`, http.StatusBadRequest, "validation"},
		{"wrong type", `{"customer_id": "one"}`, http.StatusBadRequest, "validation"},
		{"unknown customer", `{"customer_id": 42}`, http.StatusNotFound, "not_found"},
		{"unknown product", `{"customer_id": 1, "lines": [{"product_id": 99, "quantity": 1}]}`, http.StatusNotFound, "not_found"},
		{"bad quantity", `{"customer_id": 1, "lines": [{"product_id": 10, "quantity": 0}]}`, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			w := do(t, h, http.MethodPost, "/api/orders", tt.body)
			assertError(t, w, tt.status, tt.kind)
		})
	}
}

func TestGetOrder(t *testing.T) {
	h := newTestHandler(t)
	o := createOrder(t, h, `{"customer_id": 1, "lines": [{"product_id": 10, "quantity": 1}]}`)

	w := do(t, h, http.MethodGet, "/api/orders/"+itoa(o.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[orderEnvelope](t, w)
	assert.Equal(t, o.ID, got.Order.ID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "12.00", got.Lines[0].UnitPrice.String())

	w = do(t, h, http.MethodGet, "/api/orders/number/"+o.OrderNumber, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o.ID, decode[orderEnvelope](t, w).Order.ID)

	assertError(t, do(t, h, http.MethodGet, "/api/orders/999", ""), http.StatusNotFound, "not_found")
	assertError(t, do(t, h, http.MethodGet, "/api/orders/abc", ""), http.StatusBadRequest, "validation")
}

func TestAddProduct_MergeStatusCodes(t *testing.T) {
	h := newTestHandler(t)
	o := createOrder(t, h, `{"customer_id": 1}`)
	path := "/api/orders/" + itoa(o.ID) + "/products"

	w := do(t, h, http.MethodPost, path, `{"product_id": 10, "quantity": 2, "unit_price": "12.00"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[lineEnvelope](t, w)
	assert.Equal(t, "24.00", first.OrderTotal.String())

	w = do(t, h, http.MethodPost, path, `{"product_id": 10, "quantity": 1, "unit_price": 12}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	merged := decode[lineEnvelope](t, w)
	assert.Equal(t, first.Line.ID, merged.Line.ID)
	assert.Equal(t, 3, merged.Line.Quantity)
	assert.Equal(t, "36.00", merged.OrderTotal.String())

	w = do(t, h, http.MethodPost, path, `{"product_id": 11, "quantity": 1, "unit_price": -1}`)
	assertError(t, w, http.StatusBadRequest, "validation")
}

func TestLineEndpoints(t *testing.T) {
	h := newTestHandler(t)
	o := createOrder(t, h, `{"customer_id": 1}`)
	w := do(t, h, http.MethodPost, "/api/orders/"+itoa(o.ID)+"/products", `{"product_id": 11, "quantity": 2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	l := decode[lineEnvelope](t, w).Line

	w = do(t, h, http.MethodPatch, "/api/order-lines/"+itoa(l.ID)+"/quantity", `{"quantity": 4}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[lineEnvelope](t, w)
	assert.Equal(t, "14.00", res.Line.Subtotal.String())
	assert.Equal(t, "14.00", res.OrderTotal.String())

	w = do(t, h, http.MethodPatch, "/api/order-lines/"+itoa(l.ID)+"/quantity", `{}`)
	body := assertError(t, w, http.StatusBadRequest, "validation")
	assert.Equal(t, "quantity is required", body.Message)

	w = do(t, h, http.MethodPatch, "/api/order-lines/"+itoa(l.ID)+"/notes", `{"notes": "no ice"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no ice", decode[lineEnvelope](t, w).Line.Notes)

	w = do(t, h, http.MethodDelete, "/api/order-lines/"+itoa(l.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.00", decode[lineEnvelope](t, w).OrderTotal.String())

	assertError(t, do(t, h, http.MethodDelete, "/api/order-lines/"+itoa(l.ID), ""), http.StatusNotFound, "not_found")
}

func TestStatusEndpoints(t *testing.T) {
	h := newTestHandler(t)
	o := createOrder(t, h, `{"customer_id": 1}`)
	base := "/api/orders/" + itoa(o.ID)

	assertError(t, do(t, h, http.MethodPatch, base+"/status", `{"status": "ready"}`), http.StatusBadRequest, "validation")
	assertError(t, do(t, h, http.MethodPatch, base+"/status", `{"status": "bogus"}`), http.StatusBadRequest, "validation")

	w := do(t, h, http.MethodPatch, base+"/status", `{"status": "preparing"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "preparing", decode[orderEnvelope](t, w).Order.Status)

	w = do(t, h, http.MethodPatch, base+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode[orderEnvelope](t, w).Order.Status)

	body := assertError(t, do(t, h, http.MethodPatch, base+"/cancel", ""), http.StatusConflict, "conflict")
	assert.Equal(t, "order is already cancelled", body.Message)

	assertError(t, do(t, h, http.MethodPost, base+"/products", `{"product_id": 10, "quantity": 1}`), http.StatusConflict, "conflict")

	w = do(t, h, http.MethodGet, base+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]historyEntry](t, w)
	require.Len(t, history, 3)
	assert.Nil(t, history[0].PreviousStatus)
	assert.Equal(t, "pending", history[0].NewStatus)
	assert.Equal(t, "cancelled", history[2].NewStatus)
}

func TestListActive(t *testing.T) {
	h := newTestHandler(t)
	first := createOrder(t, h, `{"customer_id": 1}`)
	second := createOrder(t, h, `{"customer_id": 1}`)
	w := do(t, h, http.MethodPatch, "/api/orders/"+itoa(first.ID)+"/status", `{"status": "preparing"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/orders/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[[]orderBody](t, w)
	require.Len(t, active, 2)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, first.ID, active[1].ID)
}

func TestUpdateHeaderAndDelete(t *testing.T) {
	h := newTestHandler(t)
	o := createOrder(t, h, `{"customer_id": 1, "notes": "birthday"}`)
	base := "/api/orders/" + itoa(o.ID)

	w := do(t, h, http.MethodPatch, base, `{"table_number": "9", "notes": null}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[orderEnvelope](t, w).Order
	assert.Equal(t, "9", updated.TableNumber)
	assert.Equal(t, "birthday", updated.Notes)

	assertError(t, do(t, h, http.MethodPatch, base, `{}`), http.StatusBadRequest, "validation")

	w = do(t, h, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assertError(t, do(t, h, http.MethodGet, base, ""), http.StatusNotFound, "not_found")
}

func TestUnknownRoute(t *testing.T) {
	h := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/api/menus", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPut, "/api/orders/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestListOrders(t *testing.T) {
	h := newTestHandler(t)

	first := createOrder(t, h, `{"customer_id": 1, "table_number": "4"}`)
	second := createOrder(t, h, `{"customer_id": 1, "table_number": "9"}`)
	w := do(t, h, http.MethodPatch, "/api/orders/"+strconv.FormatInt(first.ID, 10)+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tests := []struct {
		name  string
		query string
		want  []int64
	}{
		{"all", "", []int64{second.ID, first.ID}},
		{"status", "?status=cancelled", []int64{first.ID}},
		{"customer and limit", "?customer_id=1&limit=1", []int64{second.ID}},
		{"table", "?table_number=9", []int64{second.ID}},
		{"future from", "?from=2999-01-01", []int64{}},
		{"past to", "?to=2000-01-01", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/api/orders"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			got := []int64{}
			for _, o := range decode[[]orderBody](t, w) {
				got = append(got, o.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	for _, query := range []string{"?status=lost", "?limit=abc", "?limit=500", "?from=14-03-2026", "?customer_id=x"} {
		w := do(t, h, http.MethodGet, "/api/orders"+query, "")
		assertError(t, w, http.StatusBadRequest, "validation")
	}
}

func TestCustomerOrders(t *testing.T) {
	h := newTestHandler(t)

	createOrder(t, h, `{"customer_id": 1}`)
	last := createOrder(t, h, `{"customer_id": 1}`)

	w := do(t, h, http.MethodGet, "/api/customers/1/orders?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	orders := decode[[]orderBody](t, w)
	require.Len(t, orders, 1)
	assert.Equal(t, last.ID, orders[0].ID)

	w = do(t, h, http.MethodGet, "/api/customers/99/orders", "")
	assertError(t, w, http.StatusNotFound, "not_found")
}

func TestOccupiedTables(t *testing.T) {
	h := newTestHandler(t)

	createOrder(t, h, `{"customer_id": 1, "table_number": "7"}`)
	createOrder(t, h, `{"customer_id": 1, "table_number": "7"}`)
	createOrder(t, h, `{"customer_id": 1}`)

	w := do(t, h, http.MethodGet, "/api/orders/tables/occupied", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"table_number":"7","active_orders":2}]`, w.Body.String())
}

func TestAddProduct_Limits(t *testing.T) {
	h := newTestHandler(t)
	o := createOrder(t, h, `{"customer_id": 1}`)
	path := "/api/orders/" + strconv.FormatInt(o.ID, 10) + "/products"

	for _, body := range []string{
		`{"product_id": 10, "quantity": 1, "unit_price": 12.345}`,
		`{"product_id": 10, "quantity": 1, "unit_price": 0.001}`,
		`{"product_id": 10, "quantity": 1, "unit_price": 100000000}`,
		`{"product_id": 10, "quantity": 3000000000}`,
	} {
		w := do(t, h, http.MethodPost, path, body)
		assertError(t, w, http.StatusBadRequest, "validation")
	}

	w := do(t, h, http.MethodGet, "/api/orders/"+strconv.FormatInt(o.ID, 10), "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[orderEnvelope](t, w)
	assert.Empty(t, got.Lines)
	assert.Equal(t, "0.00", got.Order.Total.String())
}
