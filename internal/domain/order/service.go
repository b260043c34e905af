package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/customer"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	statsWindow     = 7 * 24 * time.Hour
)

// Option configures a Service.
type Option func(*Service)

// WithPolicy sets the status transition policy. Unrestricted by default.
func WithPolicy(p TransitionPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithPublisher sets the event publisher. Events are dropped by default.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithNumbers sets the order number generator.
func WithNumbers(g NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("storefront/order") }
}

// WithMeterProvider sets the meter provider used for order metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("storefront/order") }
}

// Service composes orders from client-supplied totals and governs their
// status lifecycle.
type Service struct {
	orders    Repository
	customers customer.Repository

	policy  TransitionPolicy
	events  EventPublisher
	numbers NumberGenerator
	now     func() time.Time

	tracer  trace.Tracer
	meter   metric.Meter
	created metric.Int64Counter
	changed metric.Int64Counter
}

// NewService creates an order Service.
func NewService(orders Repository, customers customer.Repository, opts ...Option) (*Service, error) {
	s := &Service{
		orders:    orders,
		customers: customers,
		policy:    Unrestricted{},
		events:    NopPublisher{},
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		meter:     metricnoop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}
	if s.numbers.Now == nil {
		s.numbers.Now = s.now
	}

	var err error
	if s.created, err = s.meter.Int64Counter("order.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	if s.changed, err = s.meter.Int64Counter("order.status.changes",
		metric.WithDescription("Order status changes by target status"),
	); err != nil {
		return nil, errors.Wrap(err, "create status counter")
	}
	return s, nil
}

func checkAmount(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &InvalidAmountError{Field: field}
	}
	return nil
}

// Create validates the summary, assigns a fresh number and pending status,
// and persists the order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer span.End()

	if req.CustomerID == "" {
		return nil, auth.ErrUnauthenticated
	}
	for _, a := range []struct {
		field string
		v     decimal.Decimal
	}{
		{"subtotal", req.Subtotal},
		{"shipping_cost", req.ShippingCost},
		{"total", req.Total},
	} {
		if err := checkAmount(a.field, a.v); err != nil {
			return nil, err
		}
	}

	addr, err := s.ownedAddress(ctx, req.CustomerID, req.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	pm, err := s.ownedPaymentMethod(ctx, req.CustomerID, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	o := &Order{
		Number:            s.numbers.Next(),
		CustomerID:        req.CustomerID,
		Subtotal:          req.Subtotal.Round(2),
		ShippingCost:      req.ShippingCost.Round(2),
		Total:             req.Total.Round(2),
		PaymentMethodID:   pm.ID,
		ShippingAddressID: addr.ID,
		Note:              req.Note,
		Status:            StatusPending,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create order")
	}
	o.ShippingAddress = addr
	o.PaymentMethod = pm

	s.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("customer_id", o.CustomerID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	s.publish(ctx, o, EventCreated, "")
	return o, nil
}

// Get returns an order with its address and payment method.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// List returns orders matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Update applies a partial change. Touched amounts are re-validated and a
// touched status is parsed and checked against the transition policy.
// Number and CreatedAt in the patch are ignored.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Update", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()

	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := o.Status

	if p.Subtotal != nil {
		if err := checkAmount("subtotal", *p.Subtotal); err != nil {
			return nil, err
		}
		o.Subtotal = p.Subtotal.Round(2)
	}
	if p.ShippingCost != nil {
		if err := checkAmount("shipping_cost", *p.ShippingCost); err != nil {
			return nil, err
		}
		o.ShippingCost = p.ShippingCost.Round(2)
	}
	if p.Total != nil {
		if err := checkAmount("total", *p.Total); err != nil {
			return nil, err
		}
		o.Total = p.Total.Round(2)
	}
	if p.Status != nil {
		next, err := s.transition(o.Status, *p.Status)
		if err != nil {
			return nil, err
		}
		o.Status = next
	}
	if p.ShippingAddressID != nil {
		addr, err := s.ownedAddress(ctx, o.CustomerID, *p.ShippingAddressID)
		if err != nil {
			return nil, err
		}
		o.ShippingAddressID = addr.ID
		o.ShippingAddress = addr
	}
	if p.PaymentMethodID != nil {
		pm, err := s.ownedPaymentMethod(ctx, o.CustomerID, *p.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		o.PaymentMethodID = pm.ID
		o.PaymentMethod = pm
	}
	if p.Note != nil {
		o.Note = *p.Note
	}

	if err := s.orders.Update(ctx, o); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update order")
	}

	zctx.From(ctx).Info("Order updated", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
	if o.Status != prev {
		s.changed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(o.Status))))
		s.publish(ctx, o, EventStatusChanged, prev)
	}
	return o, nil
}

// SetStatus changes only the status. An invalid value leaves the order as
// it was.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*Order, error) {
	if _, err := ParseStatus(status); err != nil {
		return nil, err
	}
	return s.Update(ctx, id, Patch{Status: &status})
}

// Stats aggregates orders matching f.
func (s *Service) Stats(ctx context.Context, f Filter) (*Stats, error) {
	rows, err := s.orders.Summarize(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "summarize orders")
	}

	st := &Stats{
		TotalAmount:   decimal.Zero,
		AverageAmount: decimal.Zero,
		ByStatus:      make(map[Status]StatusStats, len(Statuses)),
	}
	for _, status := range Statuses {
		st.ByStatus[status] = StatusStats{Amount: decimal.Zero}
	}
	for _, r := range rows {
		st.ByStatus[r.Status] = StatusStats{Count: r.Count, Amount: r.Amount}
		st.TotalOrders += r.Count
		st.TotalAmount = st.TotalAmount.Add(r.Amount)
	}
	if st.TotalOrders > 0 {
		st.AverageAmount = st.TotalAmount.Div(decimal.NewFromInt(int64(st.TotalOrders))).Round(2)
	}

	recent, err := s.orders.CountSince(ctx, f, s.now().Add(-statsWindow))
	if err != nil {
		return nil, errors.Wrap(err, "count recent orders")
	}
	st.LastSevenDays = recent
	return st, nil
}

func (s *Service) transition(from Status, raw string) (Status, error) {
	to, err := ParseStatus(raw)
	if err != nil {
		return "", err
	}
	if !s.policy.Allow(from, to) {
		return "", &TransitionError{From: from, To: to}
	}
	return to, nil
}

func (s *Service) ownedAddress(ctx context.Context, customerID, id string) (*customer.Address, error) {
	if id == "" {
		return nil, customer.ErrAddressNotFound
	}
	a, err := s.customers.Address(ctx, id)
	if err != nil {
		if errors.Is(err, customer.ErrAddressNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get address")
	}
	if a.CustomerID != customerID {
		return nil, customer.ErrAddressNotFound
	}
	return a, nil
}

func (s *Service) ownedPaymentMethod(ctx context.Context, customerID, id string) (*customer.PaymentMethod, error) {
	if id == "" {
		return nil, customer.ErrPaymentMethodNotFound
	}
	pm, err := s.customers.PaymentMethod(ctx, id)
	if err != nil {
		if errors.Is(err, customer.ErrPaymentMethodNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get payment method")
	}
	if pm.CustomerID != customerID {
		return nil, customer.ErrPaymentMethodNotFound
	}
	return pm, nil
}

// publish runs after the write is durable, so a failure is only logged.
func (s *Service) publish(ctx context.Context, o *Order, typ EventType, prev Status) {
	e := Event{
		Type:       typ,
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Previous:   prev,
		Total:      o.Total,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(typ)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}
