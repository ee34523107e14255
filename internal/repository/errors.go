package repository

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// PostgreSQL SQLSTATE codes translated into the error taxonomy.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// uniqueMessages describes unique constraints in client terms.
var uniqueMessages = map[string]string{
	"orders_order_number_key":             "order number already exists",
	"order_lines_order_id_product_id_key": "product is already on the order",
	"users_email_key":                     "email already registered",
	"categories_name_key":                 "category already exists",
}

// foreignKeyEntities names the entity a foreign key points to.
var foreignKeyEntities = map[string]string{
	"orders_customer_id_fkey":            "customer",
	"order_lines_order_id_fkey":          "order",
	"order_lines_product_id_fkey":        "product",
	"order_status_history_order_id_fkey": "order",
	"products_category_id_fkey":          "category",
}

// classify translates a store error into an apperr kind. op describes the
// attempted operation and ends up in logs only.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return apperr.Database(err, op)
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		if msg, ok := uniqueMessages[pgErr.ConstraintName]; ok {
			return apperr.Conflict("%s", msg)
		}
		return apperr.Conflict("duplicate value")
	case codeForeignKeyViolation:
		// Deleting a parent still referenced by a RESTRICT key.
		if strings.HasPrefix(pgErr.Message, "update or delete on table") {
			return apperr.Conflict("record is still referenced")
		}
		if entity, ok := foreignKeyEntities[pgErr.ConstraintName]; ok {
			return apperr.New(apperr.KindNotFound, "referenced %s does not exist", entity)
		}
		return apperr.Conflict("record is still referenced")
	case codeCheckViolation:
		return apperr.Validation("value rejected by %s", pgErr.ConstraintName)
	case codeSerializationFailure, codeDeadlockDetected:
		return apperr.Conflict("concurrent update, try again")
	default:
		return apperr.Database(err, op)
	}
}

// notFound maps pgx.ErrNoRows to a not-found error naming the entity and
// classifies everything else.
func notFound(err error, entity string, id any, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return classify(err, op)
}
