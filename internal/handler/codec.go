package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

const maxBodySize = 1 << 20

// readBody reads a JSON object body. An empty body decodes as an empty object.
func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := jx.DecodeBytes(data).Validate(); err != nil {
		return nil, apperr.Validation("malformed JSON body")
	}
	return jx.DecodeBytes(data), nil
}

// decodeObj iterates the fields of a JSON object, wrapping type errors as
// validation errors naming the offending field.
func decodeObj(d *jx.Decoder, fn func(d *jx.Decoder, key string) error) error {
	if d.Next() != jx.Object {
		return apperr.Validation("request body must be a JSON object")
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		if err := fn(d, key); err != nil {
			if apperr.KindOf(err) != 0 {
				return err
			}
			return apperr.Validation("invalid value for %s", key)
		}
		return nil
	})
}

func decodeInt(d *jx.Decoder) (int, error) {
	if d.Next() != jx.Number {
		return 0, errors.New("not a number")
	}
	return d.Int()
}

func decodeInt64(d *jx.Decoder) (int64, error) {
	if d.Next() != jx.Number {
		return 0, errors.New("not a number")
	}
	return d.Int64()
}

func decodeStr(d *jx.Decoder) (string, error) {
	if d.Next() != jx.String {
		return "", errors.New("not a string")
	}
	return d.Str()
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.New("not a number")
	}
}

func decodeLineInput(d *jx.Decoder, allowPrice bool) (order.LineInput, error) {
	var in order.LineInput
	err := decodeObj(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			in.ProductID, err = decodeInt64(d)
		case "quantity":
			in.Quantity, err = decodeInt(d)
		case "unit_price":
			if !allowPrice {
				return d.Skip()
			}
			var price decimal.Decimal
			price, err = decodeDecimal(d)
			in.UnitPrice = decimal.NewNullDecimal(price)
		case "notes":
			in.Notes, err = decodeStr(d)
		default:
			return d.Skip()
		}
		return err
	})
	return in, err
}

func decodeCreateOrder(d *jx.Decoder) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	err := decodeObj(d, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_id":
			req.CustomerID, err = decodeInt64(d)
		case "order_number":
			req.Number, err = decodeStr(d)
		case "table_number":
			req.TableNumber, err = decodeStr(d)
		case "location":
			req.Location, err = decodeStr(d)
		case "notes":
			req.Notes, err = decodeStr(d)
		case "lines":
			if d.Next() != jx.Array {
				return errors.New("not an array")
			}
			err = d.Arr(func(d *jx.Decoder) error {
				// Initial lines are priced from the catalog.
				in, err := decodeLineInput(d, false)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, in)
				return nil
			})
		default:
			return d.Skip()
		}
		return err
	})
	return req, err
}

func decodeHeaderPatch(d *jx.Decoder) (order.HeaderPatch, error) {
	var patch order.HeaderPatch
	err := decodeObj(d, func(d *jx.Decoder, key string) error {
		var target **string
		switch key {
		case "table_number":
			target = &patch.TableNumber
		case "location":
			target = &patch.Location
		case "notes":
			target = &patch.Notes
		default:
			return d.Skip()
		}
		s, err := decodeStr(d)
		if err != nil {
			return err
		}
		*target = &s
		return nil
	})
	return patch, err
}

// decodeField decodes a body holding a single required field.
func decodeField[T any](d *jx.Decoder, name string, decode func(d *jx.Decoder) (T, error)) (T, error) {
	var (
		v   T
		set bool
	)
	err := decodeObj(d, func(d *jx.Decoder, key string) error {
		if key != name {
			return d.Skip()
		}
		var err error
		v, err = decode(d)
		set = err == nil
		return err
	})
	if err != nil {
		return v, err
	}
	if !set {
		return v, apperr.Validation("%s is required", name)
	}
	return v, nil
}

func parseID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s id %q", name, raw)
	}
	return id, nil
}

const dateLayout = time.DateOnly

// decodeListFilter reads the order list query. Dates are UTC days; "to"
// includes the whole day.
func decodeListFilter(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	f := order.ListFilter{
		Status:      order.Status(q.Get("status")),
		TableNumber: q.Get("table_number"),
	}
	var err error
	if f.CustomerID, err = queryInt64(q.Get("customer_id"), "customer_id"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	if raw := q.Get("from"); raw != "" {
		if f.From, err = time.Parse(dateLayout, raw); err != nil {
			return f, apperr.Validation("from must be a date in YYYY-MM-DD format")
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return f, apperr.Validation("to must be a date in YYYY-MM-DD format")
		}
		f.Until = to.AddDate(0, 0, 1)
	}
	return f, nil
}

func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}

func queryInt64(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Int64(o.CustomerID) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("table_number", func(e *jx.Encoder) { e.Str(o.TableNumber) })
		e.Field("location", func(e *jx.Encoder) { e.Str(o.Location) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
		e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for _, o := range orders {
			encodeOrder(e, o)
		}
	})
}

func encodeLine(e *jx.Encoder, l order.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(l.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(l.OrderID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, l.Subtotal) })
		e.Field("notes", func(e *jx.Encoder) { e.Str(l.Notes) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, l.CreatedAt) })
	})
}

func encodeDetails(e *jx.Encoder, d *order.Details) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, d.Order) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range d.Lines {
					encodeLine(e, l)
				}
			})
		})
	})
}

func encodeStatusChange(e *jx.Encoder, c order.StatusChange) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(c.OrderID) })
		e.Field("previous_status", func(e *jx.Encoder) {
			if c.From == "" {
				e.Null()
				return
			}
			e.Str(c.From.String())
		})
		e.Field("new_status", func(e *jx.Encoder) { e.Str(c.To.String()) })
		e.Field("note", func(e *jx.Encoder) { e.Str(c.Note) })
		e.Field("changed_at", func(e *jx.Encoder) { encodeTime(e, c.ChangedAt) })
	})
}

func encodeTables(e *jx.Encoder, tables []order.TableOccupancy) {
	e.Arr(func(e *jx.Encoder) {
		for _, t := range tables {
			e.Obj(func(e *jx.Encoder) {
				e.Field("table_number", func(e *jx.Encoder) { e.Str(t.TableNumber) })
				e.Field("active_orders", func(e *jx.Encoder) { e.Int(t.ActiveOrders) })
			})
		}
	})
}

// writeJSON encodes the body with fn and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
