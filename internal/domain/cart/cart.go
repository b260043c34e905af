package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart mutations.
var (
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrLineNotFound      = errors.New("cart line not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports a quantity that the variant's current stock
// cannot cover. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	VariantID string
	Requested int
	InCart    int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("insufficient stock for variant %s: requested %d with %d already in cart, available %d",
			e.VariantID, e.Requested, e.InCart, e.Available)
	}
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Cart is the single shopping cart of a customer.
type Cart struct {
	ID         string
	CustomerID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Line is one (variant, quantity) pairing inside a cart. UnitPrice and Stock
// are read live from the variant, never copied into the line.
type Line struct {
	ID        string
	CartID    string
	VariantID string
	Label     string
	Quantity  int
	UnitPrice decimal.Decimal
	Stock     int
	AddedAt   time.Time
}

// Subtotal is Quantity × UnitPrice.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals are derived from the lines of a cart and never persisted.
type Totals struct {
	ItemCount  int
	TotalPrice decimal.Decimal
}

// ComputeTotals sums quantities and line subtotals.
func ComputeTotals(lines []Line) Totals {
	t := Totals{TotalPrice: decimal.Zero}
	for _, l := range lines {
		t.ItemCount += l.Quantity
		t.TotalPrice = t.TotalPrice.Add(l.Subtotal())
	}
	t.TotalPrice = t.TotalPrice.Round(2)
	return t
}

// View is a cart with its lines and totals.
type View struct {
	Cart   Cart
	Lines  []Line
	Totals Totals
}

// Repository persists carts and their lines. Every line operation is scoped
// to a cart id so a line of another cart behaves as missing.
type Repository interface {
	// GetOrCreate returns the customer's cart, creating it if absent.
	GetOrCreate(ctx context.Context, customerID string) (*Cart, error)
	Lines(ctx context.Context, cartID string) ([]Line, error)
	// Line returns ErrLineNotFound unless lineID belongs to cartID.
	Line(ctx context.Context, cartID, lineID string) (*Line, error)
	// MergeLine inserts a line for variantID or adds qty to the existing one
	// as a single conditional write. It returns ErrInsufficientStock, leaving
	// the cart untouched, when the resulting quantity would exceed stock.
	// The boolean reports whether a new line was created.
	MergeLine(ctx context.Context, cartID, variantID string, qty int) (*Line, bool, error)
	// SetQuantity overwrites a line's quantity, guarded by stock the same
	// way as MergeLine.
	SetQuantity(ctx context.Context, cartID, lineID string, qty int) (*Line, error)
	// DeleteLine returns ErrLineNotFound unless lineID belongs to cartID.
	DeleteLine(ctx context.Context, cartID, lineID string) error
	// Clear deletes every line and returns how many were removed.
	Clear(ctx context.Context, cartID string) (int, error)
}
