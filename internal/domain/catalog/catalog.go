package catalog

import (
	"context"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrVariantNotFound is returned when a requested variant does not exist
	// or is inactive.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrStockUnderflow is returned when a stock adjustment would leave a
	// negative quantity.
	ErrStockUnderflow = errors.New("stock cannot go below zero")
	// ErrZeroAdjustment is returned for a stock adjustment of zero units.
	ErrZeroAdjustment = errors.New("stock adjustment must be non-zero")
	// ErrStockOutOfRange is returned when an adjustment or its result does
	// not fit the stock column.
	ErrStockOutOfRange = errors.New("stock adjustment out of range")
	// ErrInvalidStockBounds is returned for negative stock levels or a
	// minimum above the maximum.
	ErrInvalidStockBounds = errors.New("min_stock must not exceed max_stock")
)

// MaxStock is the largest stock level a variant can hold.
const MaxStock = math.MaxInt32

// Product groups the purchasable variants of one catalog entry.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Active      bool
	CreatedAt   time.Time
}

// Variant is a purchasable SKU. Stock is held inline and is never negative.
type Variant struct {
	ID          string
	ProductID   string
	ProductName string
	SKU         string
	Color       string
	Size        string
	Capacity    string
	UnitPrice   decimal.Decimal
	Stock       int
	MinStock    int
	MaxStock    int
	Location    string
	Active      bool
	UpdatedAt   time.Time
}

// Available reports whether qty units can be taken from the variant.
func (v *Variant) Available(qty int) bool {
	return v.Active && qty <= v.Stock
}

// Validate checks the stock levels. A zero MaxStock means no upper bound.
func (v *Variant) Validate() error {
	if v.Stock < 0 || v.MinStock < 0 || v.MaxStock < 0 {
		return errors.Wrap(ErrInvalidStockBounds, "negative stock level")
	}
	if v.Stock > MaxStock || v.MinStock > MaxStock || v.MaxStock > MaxStock {
		return ErrStockOutOfRange
	}
	if v.MaxStock > 0 && v.MinStock > v.MaxStock {
		return ErrInvalidStockBounds
	}
	return nil
}

// Overstocked reports whether stock exceeds a configured maximum.
func (v *Variant) Overstocked() bool {
	return v.MaxStock > 0 && v.Stock > v.MaxStock
}

// Alerts lists variants outside their configured stock range.
type Alerts struct {
	Low  []Variant
	Over []Variant
}

// VariantFilter narrows ListVariants.
type VariantFilter struct {
	ProductID   string
	InStockOnly bool
	Limit       int
	Offset      int
}

// Repository is the catalog read model plus the inventory write path.
type Repository interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
	ListVariants(ctx context.Context, f VariantFilter) ([]Variant, error)
	// AdjustStock applies delta to the variant's stock in a single
	// conditional update and returns the updated variant. It returns
	// ErrStockUnderflow when the result would be negative.
	AdjustStock(ctx context.Context, id string, delta int) (*Variant, error)
	// LowStock returns active variants whose stock is below their minimum.
	LowStock(ctx context.Context) ([]Variant, error)
	// OverStock returns active variants whose stock is above a non-zero
	// maximum.
	OverStock(ctx context.Context) ([]Variant, error)
}
