package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/repository"
)

// openCatalog opens path, transparently decompressing .gz files.
func openCatalog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	zr, err := pgzip.NewReader(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "open gzip reader")
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return zerr
}

// decodeCatalog parses
//
//	{"categories":[{"name","description","products":[{"id","name","description","price","available"}]}],
//	 "users":[{"name","email","phone","role"}]}
//
// Unknown fields are ignored. available defaults to true and role to
// "customer".
func decodeCatalog(r io.Reader) (*repository.Catalog, error) {
	var c repository.Catalog
	d := jx.Decode(r, 64*1024)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "categories":
			return d.Arr(func(d *jx.Decoder) error {
				cat, err := decodeCategory(d)
				if err != nil {
					return err
				}
				c.Categories = append(c.Categories, cat)
				return nil
			})
		case "users":
			return d.Arr(func(d *jx.Decoder) error {
				u, err := decodeUser(d)
				if err != nil {
					return err
				}
				c.Users = append(c.Users, u)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return &c, nil
}

func decodeCategory(d *jx.Decoder) (repository.Category, error) {
	var cat repository.Category
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			cat.Name, err = d.Str()
		case "description":
			cat.Description, err = d.Str()
		case "products":
			err = d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				cat.Products = append(cat.Products, p)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return cat, errors.Wrap(err, "category")
}

func decodeProduct(d *jx.Decoder) (repository.CatalogProduct, error) {
	p := repository.CatalogProduct{Available: true}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodePrice(d)
		case "available":
			p.Available, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return p, errors.Wrap(err, "product")
}

// decodePrice accepts 12.5 as well as "12.50".
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

func decodeUser(d *jx.Decoder) (repository.User, error) {
	u := repository.User{Role: "customer"}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			u.Name, err = d.Str()
		case "email":
			u.Email, err = d.Str()
		case "phone":
			u.Phone, err = d.Str()
		case "role":
			u.Role, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return u, errors.Wrap(err, "user")
}
