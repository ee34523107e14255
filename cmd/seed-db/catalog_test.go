package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/restaurant-orders/internal/repository"
)

const catalogJSON = `{
  "version": 2,
  "categories": [
    {"name": "Mains", "products": [
      {"id": 1, "name": "Burger", "price": "12.50", "image": {"thumbnail": "x"}},
      {"id": 2, "name": "Cider", "price": 5, "available": false}
    ]}
  ],
  "users": [
    {"name": "Ana", "email": "ana@example.com"},
    {"name": "Boss", "email": "boss@example.com", "role": "admin"}
  ]
}`

func TestDecodeCatalog(t *testing.T) {
	c, err := decodeCatalog(strings.NewReader(catalogJSON))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	require.Len(t, c.Categories, 1)
	products := c.Categories[0].Products
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, products[0].Available)
	assert.True(t, products[1].Price.Equal(decimal.NewFromInt(5)))
	assert.False(t, products[1].Available)

	assert.Equal(t, []repository.User{
		{Name: "Ana", Email: "ana@example.com", Role: "customer"},
		{Name: "Boss", Email: "boss@example.com", Role: "admin"},
	}, c.Users)
}

func TestDecodeCatalog_Invalid(t *testing.T) {
	_, err := decodeCatalog(strings.NewReader(`{"categories":[{"name":"Mains","products":[{"id":"one"}]}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestCatalogValidate(t *testing.T) {
	price := decimal.RequireFromString("1.00")
	for _, tt := range []struct {
		name    string
		catalog repository.Catalog
		wantErr string
	}{
		{
			name:    "duplicate product id",
			catalog: repository.Catalog{Categories: []repository.Category{{Name: "A", Products: []repository.CatalogProduct{{ID: 1, Name: "x", Price: price}, {ID: 1, Name: "y", Price: price}}}}},
			wantErr: "product id 1",
		},
		{
			name:    "zero price",
			catalog: repository.Catalog{Categories: []repository.Category{{Name: "A", Products: []repository.CatalogProduct{{ID: 1, Name: "x"}}}}},
			wantErr: "price must be positive",
		},
		{
			name:    "unknown role",
			catalog: repository.Catalog{Users: []repository.User{{Email: "a@b.c", Role: "chef"}}},
			wantErr: "unknown role",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, tt.catalog.Validate(), tt.wantErr)
		})
	}
}

func TestOpenCatalog_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(catalogJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	rc, err := openCatalog(path)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	c, err := decodeCatalog(rc)
	require.NoError(t, err)
	assert.Len(t, c.Users, 2)
}

func TestBundledCatalog(t *testing.T) {
	rc, err := openCatalog(filepath.Join("..", "..", "db", "seed", "catalog.json"))
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	c, err := decodeCatalog(rc)
	require.NoError(t, err)
	assert.NoError(t, c.Validate())
}
