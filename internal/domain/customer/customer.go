package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a customer does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrAddressNotFound is returned when a shipping address does not exist.
	ErrAddressNotFound = errors.New("shipping address not found")
	// ErrPaymentMethodNotFound is returned when a payment method does not exist.
	ErrPaymentMethodNotFound = errors.New("payment method not found")
)

// PaymentKind enumerates accepted payment forms.
type PaymentKind string

const (
	PaymentCreditCard PaymentKind = "credit_card"
	PaymentQR         PaymentKind = "qr"
	PaymentCash       PaymentKind = "cash"
)

// Customer is a registered buyer. A customer owns at most one cart.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	BirthDate time.Time
	CreatedAt time.Time
}

// Address is a shipping destination owned by a customer.
type Address struct {
	ID         string
	CustomerID string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// PaymentMethod is a stored payment reference owned by a customer.
type PaymentMethod struct {
	ID         string
	CustomerID string
	Kind       PaymentKind
	Details    string
}

// Repository reads customers and the references an order points at.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	Address(ctx context.Context, id string) (*Address, error)
	PaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
}
