package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/restaurant-orders/internal/domain/order"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeCreateOrder(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, *o) })
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	details, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDetails(e, details) })
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	details, err := h.orders.GetOrderByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDetails(e, details) })
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := decodeListFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "customer")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.CustomerOrders(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) occupiedTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.orders.OccupiedTables(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTables(e, tables) })
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := h.orders.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range changes {
				encodeStatusChange(e, c)
			}
		})
	})
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := decodeHeaderPatch(d)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateHeader(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeLineInput(d, true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.AddProduct(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}
	writeLineResult(w, status, res)
}

func (h *Handler) updateLineQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order line")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	qty, err := decodeField(d, "quantity", decodeInt)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.UpdateLineQuantity(r.Context(), id, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeLineResult(w, http.StatusOK, res)
}

func (h *Handler) updateLineNotes(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order line")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, err := decodeField(d, "notes", decodeStr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	l, err := h.orders.UpdateLineNotes(r.Context(), id, notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("line", func(e *jx.Encoder) { encodeLine(e, *l) })
		})
	})
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order line")
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := h.orders.RemoveProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order_total", func(e *jx.Encoder) { encodeMoney(e, total) })
		})
	})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	raw, err := decodeField(d, "status", decodeStr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	next, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.ChangeStatus(r.Context(), id, next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, o)
}

func writeOrder(w http.ResponseWriter, o *order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, *o) })
		})
	})
}

func writeLineResult(w http.ResponseWriter, status int, res *order.LineResult) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("line", func(e *jx.Encoder) { encodeLine(e, res.Line) })
			e.Field("order_total", func(e *jx.Encoder) { encodeMoney(e, res.OrderTotal) })
		})
	})
}
