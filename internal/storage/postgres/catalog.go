package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, description, category, active, created_at
		FROM products WHERE active ORDER BY name, id`

	variantColumns = `v.id, v.product_id, p.name, v.sku, v.color, v.size, v.capacity,
		v.unit_price, v.stock, v.min_stock, v.max_stock, v.location, v.active, v.updated_at`

	variantFrom = ` FROM product_variants v JOIN products p ON p.id = v.product_id`

	getVariantSQL = `SELECT ` + variantColumns + variantFrom + ` WHERE v.id = $1`

	listVariantsSQL = `SELECT ` + variantColumns + variantFrom + `
		WHERE v.active AND p.active
		  AND ($1::text = '' OR v.product_id = $1)
		  AND (NOT $2::boolean OR v.stock > 0)
		ORDER BY p.name, v.sku
		LIMIT $3 OFFSET $4`

	lowStockSQL = `SELECT ` + variantColumns + variantFrom + `
		WHERE v.active AND v.stock < v.min_stock
		ORDER BY v.stock, v.sku`

	overStockSQL = `SELECT ` + variantColumns + variantFrom + `
		WHERE v.active AND v.max_stock > 0 AND v.stock > v.max_stock
		ORDER BY v.stock DESC, v.sku`

	adjustStockSQL = `UPDATE product_variants
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING id`

	variantExistsSQL = `SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1)`

	upsertProductSQL = `INSERT INTO products (id, name, description, category, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description,
		    category = EXCLUDED.category, active = EXCLUDED.active`

	upsertVariantSQL = `INSERT INTO product_variants
		(product_id, sku, color, size, capacity, unit_price, stock, min_stock, max_stock, location, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (sku) DO UPDATE
		SET product_id = EXCLUDED.product_id, color = EXCLUDED.color, size = EXCLUDED.size,
		    capacity = EXCLUDED.capacity, unit_price = EXCLUDED.unit_price, stock = EXCLUDED.stock,
		    min_stock = EXCLUDED.min_stock, max_stock = EXCLUDED.max_stock,
		    location = EXCLUDED.location, active = EXCLUDED.active, updated_at = now()
		RETURNING id`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListProducts returns active products ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetVariant returns a single variant, active or not.
func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// ListVariants returns active variants matching f.
func (r *CatalogRepository) ListVariants(ctx context.Context, f catalog.VariantFilter) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, listVariantsSQL, f.ProductID, f.InStockOnly, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// AdjustStock applies delta in a single conditional update so stock never
// drops below zero.
func (r *CatalogRepository) AdjustStock(ctx context.Context, id string, delta int) (*catalog.Variant, error) {
	var updated string
	err := r.pool.QueryRow(ctx, adjustStockSQL, id, delta).Scan(&updated)
	if err != nil {
		if code, _ := pgCode(err); code == codeNumericOutOfRange {
			return nil, catalog.ErrStockOutOfRange
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("adjusting stock of %q: %w", id, err)
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, variantExistsSQL, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking variant %q: %w", id, err)
		}
		if !exists {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, catalog.ErrStockUnderflow
	}
	return r.GetVariant(ctx, updated)
}

// LowStock returns active variants whose stock is below their minimum.
func (r *CatalogRepository) LowStock(ctx context.Context) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, lowStockSQL)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// OverStock returns active variants holding more than their maximum.
func (r *CatalogRepository) OverStock(ctx context.Context) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, overStockSQL)
	if err != nil {
		return nil, fmt.Errorf("listing over stock: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// UpsertProduct creates or replaces a product by id.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Category, p.Active)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertVariant creates or replaces a variant keyed by SKU and returns its id.
func (r *CatalogRepository) UpsertVariant(ctx context.Context, v catalog.Variant) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, upsertVariantSQL,
		v.ProductID, v.SKU, v.Color, v.Size, v.Capacity, v.UnitPrice,
		v.Stock, v.MinStock, v.MaxStock, v.Location, v.Active,
	).Scan(&id)
	if err != nil {
		switch code, constraint := pgCode(err); {
		case code == codeForeignKeyViolation:
			return "", fmt.Errorf("upserting variant %q: product %q does not exist", v.SKU, v.ProductID)
		case code == codeCheckViolation && constraint == "product_variants_stock_bounds":
			return "", fmt.Errorf("upserting variant %q: %w", v.SKU, catalog.ErrInvalidStockBounds)
		}
		return "", fmt.Errorf("upserting variant %q: %w", v.SKU, err)
	}
	return id, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Active, &p.CreatedAt)
	return p, err
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var (
		v     catalog.Variant
		price decimal.Decimal
	)
	err := row.Scan(
		&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.Color, &v.Size, &v.Capacity,
		&price, &v.Stock, &v.MinStock, &v.MaxStock, &v.Location, &v.Active, &v.UpdatedAt,
	)
	v.UnitPrice = price
	return v, err
}
