package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

// record is one line of a catalog export: a variant with its product.
type record struct {
	ProductID   string
	ProductName string
	Description string
	Category    string
	Variant     catalog.Variant
}

// catalogWriter is the part of the catalog repository the import writes to.
type catalogWriter interface {
	UpsertProduct(ctx context.Context, p catalog.Product) error
	UpsertVariant(ctx context.Context, v catalog.Variant) (string, error)
}

// skuSet remembers SKUs already accepted. The bloom filter is the set:
// memory stays fixed by the expected count, and a new SKU that collides is
// dropped as a duplicate with probability bloomFPR. With exact set, every
// SKU is also kept in a map and bloom positives are confirmed against it.
type skuSet struct {
	mu             sync.Mutex
	filter         *bloom.BloomFilter
	seen           map[string]struct{}
	falsePositives int
}

func newSKUSet(expected uint, exact bool) *skuSet {
	if expected == 0 {
		expected = 1
	}
	s := &skuSet{filter: bloom.NewWithEstimates(expected, bloomFPR)}
	if exact {
		s.seen = make(map[string]struct{})
	}
	return s
}

// Add reports whether sku was not seen before, recording it.
func (s *skuSet) Add(sku string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	hit := s.filter.TestAndAddString(sku)
	if s.seen == nil {
		return !hit
	}
	if hit {
		if _, ok := s.seen[sku]; ok {
			return false
		}
		s.falsePositives++
	}
	s.seen[sku] = struct{}{}
	return true
}

type importStats struct {
	Lines      int64
	Imported   int64
	Duplicates int64
	Invalid    int64
	Products   int
}

// importFiles streams every file concurrently and upserts each first
// occurrence of a SKU. Writes go through a single goroutine so a product is
// always stored before its variants.
func importFiles(ctx context.Context, files []string, skus *skuSet, w catalogWriter) (importStats, error) {
	var (
		stats   importStats
		lines   atomic.Int64
		dups    atomic.Int64
		invalid atomic.Int64
	)
	records := make(chan record, 1024)

	g, ctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(ctx)
	for i, path := range files {
		readers.Go(func() error {
			return streamGzFile(rctx, path, func(line []byte) error {
				n := lines.Add(1)
				if n%progressEvery == 0 {
					slog.Info("read progress", slog.Int64("lines", n))
				}
				rec, err := parseRecord(line)
				if err != nil {
					invalid.Add(1)
					slog.Warn("skipping invalid line", slog.Int("file", i+1), slog.String("error", err.Error()))
					return nil
				}
				if !skus.Add(rec.Variant.SKU) {
					dups.Add(1)
					return nil
				}
				select {
				case records <- rec:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(records)
		return readers.Wait()
	})

	g.Go(func() error {
		products := make(map[string]struct{})
		for rec := range records {
			if _, ok := products[rec.ProductID]; !ok {
				if err := w.UpsertProduct(ctx, catalog.Product{
					ID:          rec.ProductID,
					Name:        rec.ProductName,
					Description: rec.Description,
					Category:    rec.Category,
					Active:      true,
				}); err != nil {
					return err
				}
				products[rec.ProductID] = struct{}{}
			}
			if _, err := w.UpsertVariant(ctx, rec.Variant); err != nil {
				return err
			}
			stats.Imported++
		}
		stats.Products = len(products)
		return nil
	})

	err := g.Wait()
	stats.Lines = lines.Load()
	stats.Duplicates = dups.Load()
	stats.Invalid = invalid.Load()
	if err != nil {
		return stats, errors.Wrap(err, "import catalog")
	}
	if skus.falsePositives > 0 {
		slog.Info("bloom filter false positives confirmed", slog.Int("count", skus.falsePositives))
	}
	if skus.seen == nil && stats.Duplicates > 0 {
		slog.Info("duplicates decided by bloom filter",
			slog.Int64("duplicates", stats.Duplicates),
			slog.Float64("false_positive_rate", bloomFPR),
		)
	}
	return stats, nil
}

// parseRecord decodes one NDJSON line. unit_price may be a number or a
// string.
func parseRecord(line []byte) (record, error) {
	rec := record{Variant: catalog.Variant{Active: true}}
	v := &rec.Variant

	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			rec.ProductID, err = d.Str()
		case "product_name":
			rec.ProductName, err = d.Str()
		case "description":
			rec.Description, err = d.Str()
		case "category":
			rec.Category, err = d.Str()
		case "sku":
			v.SKU, err = d.Str()
		case "color":
			v.Color, err = d.Str()
		case "size":
			v.Size, err = d.Str()
		case "capacity":
			v.Capacity, err = d.Str()
		case "location":
			v.Location, err = d.Str()
		case "unit_price":
			v.UnitPrice, err = decodeDecimal(d)
		case "stock":
			v.Stock, err = d.Int()
		case "min_stock":
			v.MinStock, err = d.Int()
		case "max_stock":
			v.MaxStock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return record{}, errors.Wrap(err, "decode record")
	}

	rec.ProductID = strings.TrimSpace(rec.ProductID)
	v.SKU = strings.TrimSpace(v.SKU)
	v.ProductID = rec.ProductID
	switch {
	case rec.ProductID == "":
		return record{}, errors.New("product_id is required")
	case rec.ProductName == "":
		return record{}, errors.New("product_name is required")
	case v.SKU == "":
		return record{}, errors.New("sku is required")
	case v.UnitPrice.IsNegative():
		return record{}, errors.Errorf("sku %s: negative unit_price", v.SKU)
	case v.Stock < 0:
		return record{}, errors.Errorf("sku %s: negative stock", v.SKU)
	}
	if err := v.Validate(); err != nil {
		return record{}, errors.Wrapf(err, "sku %s", v.SKU)
	}
	return rec, nil
}

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
		return decimal.Zero, errors.New("unit_price must be a number or string")
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
