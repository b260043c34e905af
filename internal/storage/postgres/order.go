package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/customer"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(number, customer_id, subtotal, shipping_cost, total, payment_method_id, shipping_address_id, note, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	orderColumns = `o.id, o.number, o.customer_id, o.subtotal, o.shipping_cost, o.total,
		o.payment_method_id, o.shipping_address_id, o.note, o.status, o.created_at, o.updated_at,
		a.street, a.city, a.state, a.postal_code, a.country,
		pm.kind, pm.details`

	orderFrom = ` FROM orders o
		JOIN addresses a ON a.id = o.shipping_address_id
		JOIN payment_methods pm ON pm.id = o.payment_method_id`

	getOrderSQL = `SELECT ` + orderColumns + orderFrom + ` WHERE o.id = $1`

	updateOrderSQL = `UPDATE orders
		SET subtotal = $2, shipping_cost = $3, total = $4, payment_method_id = $5,
		    shipping_address_id = $6, note = $7, status = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	numberConstraint = "orders_number_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The unique index on number is the only guard
// against duplicates; a violation is reported, not retried.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.pool.QueryRow(ctx, createOrderSQL,
		o.Number, o.CustomerID, o.Subtotal, o.ShippingCost, o.Total,
		o.PaymentMethodID, o.ShippingAddressID, o.Note, string(o.Status),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return mapOrderWriteError(err, o.Number)
	}
	return nil
}

// Get returns an order with its address and payment method.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	where, args := orderWhere(f)
	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + orderColumns + orderFrom + where +
		` ORDER BY o.created_at DESC, o.id` +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Update writes the mutable columns. Number and created_at are not part of
// the statement.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	err := r.pool.QueryRow(ctx, updateOrderSQL,
		o.ID, o.Subtotal, o.ShippingCost, o.Total, o.PaymentMethodID,
		o.ShippingAddressID, o.Note, string(o.Status),
	).Scan(&o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return mapOrderWriteError(err, o.Number)
	}
	return nil
}

// Summarize groups orders matching f by status.
func (r *OrderRepository) Summarize(ctx context.Context, f order.Filter) ([]order.Summary, error) {
	where, args := orderWhere(f)
	q := `SELECT o.status, count(*), COALESCE(sum(o.total), 0) FROM orders o` + where + ` GROUP BY o.status`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Summary, error) {
		var (
			s      order.Summary
			status string
			amount decimal.Decimal
		)
		err := row.Scan(&status, &s.Count, &amount)
		s.Status = order.Status(status)
		s.Amount = amount
		return s, err
	})
}

// CountSince counts orders matching f created at or after since.
func (r *OrderRepository) CountSince(ctx context.Context, f order.Filter, since time.Time) (int, error) {
	where, args := orderWhere(f)
	args = append(args, since)
	cond := "o.created_at >= $" + strconv.Itoa(len(args))
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders o`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting recent orders: %w", err)
	}
	return n, nil
}

// orderWhere builds the WHERE clause for f. From is inclusive, To exclusive.
func orderWhere(f order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.CustomerID != "" {
		add("o.customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		add("o.status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		add("o.created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("o.created_at < ?", f.To)
	}
	if f.NumberContains != "" {
		add("o.number ILIKE '%' || ? || '%'", escapeLike(f.NumberContains))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func mapOrderWriteError(err error, number string) error {
	code, constraint := pgCode(err)
	switch {
	case code == codeUniqueViolation && constraint == numberConstraint:
		return order.ErrDuplicateNumber
	case code == codeForeignKeyViolation && strings.Contains(constraint, "shipping_address"):
		return customer.ErrAddressNotFound
	case code == codeForeignKeyViolation && strings.Contains(constraint, "payment_method"):
		return customer.ErrPaymentMethodNotFound
	case code == codeForeignKeyViolation:
		return customer.ErrNotFound
	}
	return fmt.Errorf("writing order %q: %w", number, err)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                         order.Order
		status                    string
		subtotal, shipping, total decimal.Decimal
		addr                      customer.Address
		pm                        customer.PaymentMethod
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &subtotal, &shipping, &total,
		&o.PaymentMethodID, &o.ShippingAddressID, &o.Note, &status, &o.CreatedAt, &o.UpdatedAt,
		&addr.Street, &addr.City, &addr.State, &addr.PostalCode, &addr.Country,
		&pm.Kind, &pm.Details,
	)
	if err != nil {
		return o, err
	}
	o.Subtotal, o.ShippingCost, o.Total = subtotal, shipping, total
	o.Status = order.Status(status)

	addr.ID, addr.CustomerID = o.ShippingAddressID, o.CustomerID
	pm.ID, pm.CustomerID = o.PaymentMethodID, o.CustomerID
	o.ShippingAddress = &addr
	o.PaymentMethod = &pm
	return o, nil
}
