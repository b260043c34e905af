package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/customer"
)

// Sentinel errors for order operations.
var (
	ErrNotFound        = errors.New("order not found")
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrDuplicateNumber = errors.New("order number already exists")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// ParseStatus accepts any casing and surrounding whitespace and returns the
// normalized lowercase status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// InvalidAmountError reports a negative monetary field.
type InvalidAmountError struct {
	Field string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s must be greater than or equal to 0", e.Field)
}

// Order is a placed order. Number and CreatedAt never change after creation.
type Order struct {
	ID                string
	Number            string
	CustomerID        string
	Subtotal          decimal.Decimal
	ShippingCost      decimal.Decimal
	Total             decimal.Decimal
	PaymentMethodID   string
	ShippingAddressID string
	Note              string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Populated on read.
	ShippingAddress *customer.Address
	PaymentMethod   *customer.PaymentMethod
}

// CreateRequest is the client-supplied summary an order is built from.
type CreateRequest struct {
	CustomerID        string
	Subtotal          decimal.Decimal
	ShippingCost      decimal.Decimal
	Total             decimal.Decimal
	ShippingAddressID string
	PaymentMethodID   string
	Note              string
}

// Patch is a partial update. Nil fields are left untouched. Number and
// CreatedAt are accepted so callers can pass them through, but they are
// never applied.
type Patch struct {
	Subtotal          *decimal.Decimal
	ShippingCost      *decimal.Decimal
	Total             *decimal.Decimal
	ShippingAddressID *string
	PaymentMethodID   *string
	Note              *string
	Status            *string

	Number    *string
	CreatedAt *time.Time
}

// Filter narrows order queries. Zero values mean "any".
type Filter struct {
	CustomerID     string
	Status         Status
	From           time.Time
	To             time.Time
	NumberContains string
	Limit          int
	Offset         int
}

// StatusStats aggregates orders of one status.
type StatusStats struct {
	Count  int
	Amount decimal.Decimal
}

// Stats are derived on demand, never stored.
type Stats struct {
	TotalOrders   int
	TotalAmount   decimal.Decimal
	AverageAmount decimal.Decimal
	ByStatus      map[Status]StatusStats
	LastSevenDays int
}

// Summary is one row of the per-status aggregation a repository returns.
type Summary struct {
	Status Status
	Count  int
	Amount decimal.Decimal
}

// Repository persists orders.
type Repository interface {
	// Create inserts o, filling ID, CreatedAt and UpdatedAt. It returns
	// ErrDuplicateNumber when the number is taken.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// Update writes the mutable columns of o.
	Update(ctx context.Context, o *Order) error
	// Summarize groups orders matching f by status.
	Summarize(ctx context.Context, f Filter) ([]Summary, error)
	// CountSince counts orders matching f created at or after since.
	CountSince(ctx context.Context, f Filter, since time.Time) (int, error)
}
