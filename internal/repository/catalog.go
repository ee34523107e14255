package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Catalog is the reference data orders depend on: menu categories with their
// products, and the users that place orders.
type Catalog struct {
	Categories []Category
	Users      []User
}

// Category groups products on the menu.
type Category struct {
	Name        string
	Description string
	Products    []CatalogProduct
}

// CatalogProduct is a menu item. ID is kept stable across seeds so that
// existing order lines keep pointing at the same product.
type CatalogProduct struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Available   bool
}

// User is a customer or staff account, keyed by email.
type User struct {
	Name  string
	Email string
	Phone string
	Role  string
}

// SeedStats reports how many rows an upsert touched.
type SeedStats struct {
	Categories int
	Products   int
	Users      int
}

const (
	upsertCategorySQL = `INSERT INTO categories (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id`

	upsertProductSQL = `INSERT INTO products (id, category_id, name, description, price, available)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    category_id = EXCLUDED.category_id,
    name        = EXCLUDED.name,
    description = EXCLUDED.description,
    price       = EXCLUDED.price,
    available   = EXCLUDED.available`

	upsertUserSQL = `INSERT INTO users (name, email, phone, role) VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET
    name  = EXCLUDED.name,
    phone = EXCLUDED.phone,
    role  = EXCLUDED.role`

	// Products are inserted with explicit ids, so the identity has to be
	// moved past them before the API creates any.
	syncProductIdentitySQL = `SELECT setval(pg_get_serial_sequence('products', 'id'),
    GREATEST((SELECT max(id) FROM products), 1))`
)

// CatalogRepository upserts reference data.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// Upsert writes c. Call it inside TxManager.WithinTx to make the seed atomic.
func (r *CatalogRepository) Upsert(ctx context.Context, c *Catalog) (SeedStats, error) {
	q := conn(ctx, r.pool)
	var stats SeedStats

	for _, cat := range c.Categories {
		var categoryID int64
		if err := q.QueryRow(ctx, upsertCategorySQL, cat.Name, cat.Description).Scan(&categoryID); err != nil {
			return stats, classify(err, "upsert category "+cat.Name)
		}
		stats.Categories++

		batch := &pgx.Batch{}
		for _, p := range cat.Products {
			batch.Queue(upsertProductSQL, p.ID, categoryID, p.Name, p.Description, p.Price, p.Available)
		}
		if err := q.SendBatch(ctx, batch).Close(); err != nil {
			return stats, classify(err, "upsert products of "+cat.Name)
		}
		stats.Products += len(cat.Products)
	}

	if stats.Products > 0 {
		if _, err := q.Exec(ctx, syncProductIdentitySQL); err != nil {
			return stats, classify(err, "sync product identity")
		}
	}

	batch := &pgx.Batch{}
	for _, u := range c.Users {
		batch.Queue(upsertUserSQL, u.Name, u.Email, u.Phone, u.Role)
	}
	if batch.Len() > 0 {
		if err := q.SendBatch(ctx, batch).Close(); err != nil {
			return stats, classify(err, "upsert users")
		}
	}
	stats.Users = len(c.Users)

	return stats, nil
}

// Validate reports the first structural problem in c.
func (c *Catalog) Validate() error {
	seen := make(map[int64]string)
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return errors.New("category without name")
		}
		for _, p := range cat.Products {
			switch {
			case p.ID <= 0:
				return errors.Errorf("product %q: id must be positive", p.Name)
			case p.Name == "":
				return errors.Errorf("product %d: name is required", p.ID)
			case !p.Price.IsPositive():
				return errors.Errorf("product %d: price must be positive", p.ID)
			}
			if other, ok := seen[p.ID]; ok {
				return errors.Errorf("product id %d used by %q and %q", p.ID, other, p.Name)
			}
			seen[p.ID] = p.Name
		}
	}
	for _, u := range c.Users {
		if u.Email == "" {
			return errors.Errorf("user %q: email is required", u.Name)
		}
		if u.Role != "customer" && u.Role != "admin" {
			return errors.Errorf("user %s: unknown role %q", u.Email, u.Role)
		}
	}
	return nil
}
