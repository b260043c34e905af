package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/customer"
)

const (
	insertCartSQL = `INSERT INTO carts (customer_id) VALUES ($1)
		ON CONFLICT (customer_id) DO NOTHING`

	getCartSQL = `SELECT id, customer_id, created_at, updated_at
		FROM carts WHERE customer_id = $1`

	lineColumns = `l.id, l.cart_id, l.variant_id,
		concat_ws(' / ', p.name, NULLIF(v.color, ''), NULLIF(v.size, ''), NULLIF(v.capacity, '')),
		l.quantity, v.unit_price, v.stock, l.added_at`

	lineFrom = ` FROM cart_lines l
		JOIN product_variants v ON v.id = l.variant_id
		JOIN products p ON p.id = v.product_id`

	listLinesSQL = `SELECT ` + lineColumns + lineFrom + `
		WHERE l.cart_id = $1 ORDER BY l.added_at, l.id`

	getLineSQL = `SELECT ` + lineColumns + lineFrom + `
		WHERE l.cart_id = $1 AND l.id = $2`

	// The insert only fires when the variant can cover qty, and the conflict
	// branch only fires when the merged quantity still fits. Zero rows means
	// the stock guard rejected the write.
	mergeLineSQL = `INSERT INTO cart_lines (cart_id, variant_id, quantity)
		SELECT $1::text, v.id, $3::int FROM product_variants v
		WHERE v.id = $2 AND v.active AND v.stock >= $3::int
		ON CONFLICT (cart_id, variant_id) DO UPDATE
		SET quantity = cart_lines.quantity + EXCLUDED.quantity
		WHERE cart_lines.quantity + EXCLUDED.quantity <=
		      (SELECT stock FROM product_variants WHERE id = $2)
		RETURNING id, (xmax = 0)`

	setQuantitySQL = `UPDATE cart_lines l SET quantity = $3
		FROM product_variants v
		WHERE l.cart_id = $1 AND l.id = $2 AND v.id = l.variant_id AND v.stock >= $3
		RETURNING l.id`

	lineExistsSQL = `SELECT EXISTS (SELECT 1 FROM cart_lines WHERE cart_id = $1 AND id = $2)`

	deleteLineSQL = `DELETE FROM cart_lines WHERE cart_id = $1 AND id = $2`

	clearCartSQL = `DELETE FROM cart_lines WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the customer's cart. Concurrent first calls converge on
// the single row allowed by the unique customer_id constraint.
func (r *CartRepository) GetOrCreate(ctx context.Context, customerID string) (*cart.Cart, error) {
	if _, err := r.pool.Exec(ctx, insertCartSQL, customerID); err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("creating cart for %q: %w", customerID, err)
	}

	var c cart.Cart
	err := r.pool.QueryRow(ctx, getCartSQL, customerID).Scan(&c.ID, &c.CustomerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting cart for %q: %w", customerID, err)
	}
	return &c, nil
}

// Lines returns the cart's lines with live price and stock.
func (r *CartRepository) Lines(ctx context.Context, cartID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listLinesSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of cart %q: %w", cartID, err)
	}
	return pgx.CollectRows(rows, scanLine)
}

// Line returns one line of the cart.
func (r *CartRepository) Line(ctx context.Context, cartID, lineID string) (*cart.Line, error) {
	rows, err := r.pool.Query(ctx, getLineSQL, cartID, lineID)
	if err != nil {
		return nil, fmt.Errorf("getting line %q: %w", lineID, err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrLineNotFound
		}
		return nil, fmt.Errorf("getting line %q: %w", lineID, err)
	}
	return &l, nil
}

// MergeLine inserts or increases the line for variantID in one statement.
func (r *CartRepository) MergeLine(ctx context.Context, cartID, variantID string, qty int) (*cart.Line, bool, error) {
	var (
		lineID  string
		created bool
	)
	err := r.pool.QueryRow(ctx, mergeLineSQL, cartID, variantID, qty).Scan(&lineID, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, cart.ErrInsufficientStock
		}
		return nil, false, fmt.Errorf("merging variant %q into cart %q: %w", variantID, cartID, err)
	}
	r.touch(ctx, cartID)

	l, err := r.Line(ctx, cartID, lineID)
	if err != nil {
		return nil, false, err
	}
	return l, created, nil
}

// SetQuantity overwrites the quantity when stock covers it.
func (r *CartRepository) SetQuantity(ctx context.Context, cartID, lineID string, qty int) (*cart.Line, error) {
	var updated string
	err := r.pool.QueryRow(ctx, setQuantitySQL, cartID, lineID, qty).Scan(&updated)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("setting quantity of line %q: %w", lineID, err)
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, lineExistsSQL, cartID, lineID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking line %q: %w", lineID, err)
		}
		if !exists {
			return nil, cart.ErrLineNotFound
		}
		return nil, cart.ErrInsufficientStock
	}
	r.touch(ctx, cartID)
	return r.Line(ctx, cartID, updated)
}

// DeleteLine removes a line of the cart.
func (r *CartRepository) DeleteLine(ctx context.Context, cartID, lineID string) error {
	tag, err := r.pool.Exec(ctx, deleteLineSQL, cartID, lineID)
	if err != nil {
		return fmt.Errorf("deleting line %q: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	r.touch(ctx, cartID)
	return nil
}

// Clear removes every line of the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) (int, error) {
	tag, err := r.pool.Exec(ctx, clearCartSQL, cartID)
	if err != nil {
		return 0, fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	r.touch(ctx, cartID)
	return int(tag.RowsAffected()), nil
}

// touch bumps updated_at. It is bookkeeping only, so errors are dropped.
func (r *CartRepository) touch(ctx context.Context, cartID string) {
	_, _ = r.pool.Exec(ctx, touchCartSQL, cartID)
}

func scanLine(row pgx.CollectableRow) (cart.Line, error) {
	var (
		l     cart.Line
		price decimal.Decimal
	)
	err := row.Scan(&l.ID, &l.CartID, &l.VariantID, &l.Label, &l.Quantity, &price, &l.Stock, &l.AddedAt)
	l.UnitPrice = price
	return l, err
}
