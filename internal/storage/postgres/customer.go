package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, name, email, phone, birth_date, created_at
		FROM customers WHERE id = $1`

	getAddressSQL = `SELECT id, customer_id, street, city, state, postal_code, country
		FROM addresses WHERE id = $1`

	getPaymentMethodSQL = `SELECT id, customer_id, kind, details
		FROM payment_methods WHERE id = $1`

	createCustomerSQL = `INSERT INTO customers (name, email, phone, birth_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at`

	createAddressSQL = `INSERT INTO addresses (customer_id, street, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	createPaymentMethodSQL = `INSERT INTO payment_methods (customer_id, kind, details)
		VALUES ($1, $2, $3)
		RETURNING id`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns a customer by id.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var (
		c     customer.Customer
		birth *time.Time
	)
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &birth, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	if birth != nil {
		c.BirthDate = *birth
	}
	return &c, nil
}

// Address returns a shipping address by id.
func (r *CustomerRepository) Address(ctx context.Context, id string) (*customer.Address, error) {
	rows, err := r.pool.Query(ctx, getAddressSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}

// PaymentMethod returns a payment method by id.
func (r *CustomerRepository) PaymentMethod(ctx context.Context, id string) (*customer.PaymentMethod, error) {
	var pm customer.PaymentMethod
	err := r.pool.QueryRow(ctx, getPaymentMethodSQL, id).Scan(&pm.ID, &pm.CustomerID, &pm.Kind, &pm.Details)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrPaymentMethodNotFound
		}
		return nil, fmt.Errorf("getting payment method %q: %w", id, err)
	}
	return &pm, nil
}

// Create inserts a customer, or renames the existing one with the same email,
// and fills ID and CreatedAt.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	var birth *time.Time
	if !c.BirthDate.IsZero() {
		birth = &c.BirthDate
	}
	err := r.pool.QueryRow(ctx, createCustomerSQL, c.Name, c.Email, c.Phone, birth).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating customer %q: %w", c.Email, err)
	}
	return nil
}

// AddAddress inserts an address for a.CustomerID and fills its ID.
func (r *CustomerRepository) AddAddress(ctx context.Context, a *customer.Address) error {
	err := r.pool.QueryRow(ctx, createAddressSQL,
		a.CustomerID, a.Street, a.City, a.State, a.PostalCode, a.Country,
	).Scan(&a.ID)
	if err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return customer.ErrNotFound
		}
		return fmt.Errorf("creating address: %w", err)
	}
	return nil
}

// AddPaymentMethod inserts a payment method for pm.CustomerID and fills its ID.
func (r *CustomerRepository) AddPaymentMethod(ctx context.Context, pm *customer.PaymentMethod) error {
	err := r.pool.QueryRow(ctx, createPaymentMethodSQL, pm.CustomerID, pm.Kind, pm.Details).Scan(&pm.ID)
	if err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return customer.ErrNotFound
		}
		return fmt.Errorf("creating payment method: %w", err)
	}
	return nil
}

func scanAddress(row pgx.CollectableRow) (customer.Address, error) {
	var a customer.Address
	err := row.Scan(&a.ID, &a.CustomerID, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country)
	return a, err
}
