package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		expected    uint
		exact       bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory scanned for *.ndjson.gz when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected-skus", 1_000_000, "expected number of distinct SKUs, sizes the bloom filter")
	flag.BoolVar(&exact, "exact-dedup", false, "confirm bloom filter hits against an in-memory SKU set (memory grows with the catalog)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, newSKUSet(expected, exact), flag.Args()); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, skus *skuSet, files []string) error {
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
		if err != nil {
			return errors.Wrap(err, "list data dir")
		}
		files = matches
	}
	if len(files) == 0 {
		return errors.Errorf("no *.ndjson.gz files in %s", dataDir)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	stats, err := importFiles(ctx, files, skus, postgres.NewCatalogRepository(pool))
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int("files", len(files)),
		slog.Int64("lines", stats.Lines),
		slog.Int64("imported", stats.Imported),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("invalid", stats.Invalid),
		slog.Int("products", stats.Products),
	)
	return nil
}
