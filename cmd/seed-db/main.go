// Command seed-db loads the menu catalog and user accounts into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/repository"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		timeout     time.Duration
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or RESTO_DATABASE_URL / DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "db/seed/catalog.json", "path to catalog JSON, optionally gzip-compressed (.gz)")
	flag.DurationVar(&timeout, "timeout", time.Minute, "upper bound for the whole seed")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	for _, env := range []string{"RESTO_DATABASE_URL", "DATABASE_URL"} {
		if databaseURL == "" {
			databaseURL = os.Getenv(env)
		}
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url, RESTO_DATABASE_URL or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile, timeout); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile string, timeout time.Duration) error {
	lg.Info("Reading catalog", zap.String("path", catalogFile))
	f, err := openCatalog(catalogFile)
	if err != nil {
		return err
	}
	catalog, err := decodeCatalog(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if err := catalog.Validate(); err != nil {
		return errors.Wrap(err, "invalid catalog")
	}

	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolOptions{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return err
	}

	var stats repository.SeedStats
	repo := repository.NewCatalogRepository(pool)
	if err := repository.NewTxManager(pool, timeout).WithinTx(ctx, func(ctx context.Context) error {
		stats, err = repo.Upsert(ctx, catalog)
		return err
	}); err != nil {
		return errors.Wrap(err, "upsert catalog")
	}

	lg.Info("Seed completed",
		zap.Int("categories", stats.Categories),
		zap.Int("products", stats.Products),
		zap.Int("users", stats.Users),
	)
	return nil
}
