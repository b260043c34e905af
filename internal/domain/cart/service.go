package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
)

// VariantReader is the slice of the catalog the cart needs for pricing and
// stock checks.
type VariantReader interface {
	GetVariant(ctx context.Context, id string) (*catalog.Variant, error)
}

// AddResult is the outcome of AddItem.
type AddResult struct {
	Line    *Line
	Created bool
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("storefront/cart") }
}

// WithMeterProvider sets the meter provider used for cart metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("storefront/cart") }
}

// Service is the cart manager: one cart per customer whose lines never
// exceed the live stock of their variants.
type Service struct {
	repo     Repository
	variants VariantReader

	tracer    trace.Tracer
	meter     metric.Meter
	mutations metric.Int64Counter
	rejected  metric.Int64Counter
}

// NewService creates a cart Service.
func NewService(repo Repository, variants VariantReader, opts ...Option) (*Service, error) {
	s := &Service{
		repo:     repo,
		variants: variants,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
		meter:    metricnoop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.mutations, err = s.meter.Int64Counter("cart.line.mutations",
		metric.WithDescription("Cart line mutations by operation"),
	); err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	if s.rejected, err = s.meter.Int64Counter("cart.stock.rejections",
		metric.WithDescription("Cart mutations rejected for insufficient stock"),
	); err != nil {
		return nil, errors.Wrap(err, "create rejections counter")
	}
	return s, nil
}

func (s *Service) cart(ctx context.Context, customerID string) (*Cart, error) {
	if customerID == "" {
		return nil, auth.ErrUnauthenticated
	}
	c, err := s.repo.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "get or create cart")
	}
	return c, nil
}

// GetOrCreate returns the customer's cart, creating an empty one on first
// access.
func (s *Service) GetOrCreate(ctx context.Context, customerID string) (*Cart, error) {
	return s.cart(ctx, customerID)
}

// View returns the customer's cart with lines and derived totals.
func (s *Service) View(ctx context.Context, customerID string) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "cart.View")
	defer span.End()

	c, err := s.cart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.Lines(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	return &View{Cart: *c, Lines: lines, Totals: ComputeTotals(lines)}, nil
}

// AddItem adds qty units of a variant. An existing line for the same variant
// is increased instead of duplicated, and the merged quantity must still fit
// in stock.
func (s *Service) AddItem(ctx context.Context, customerID, variantID string, qty int) (*AddResult, error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem", trace.WithAttributes(
		attribute.String("variant_id", variantID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	if customerID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	v, err := s.variant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if !v.Available(qty) {
		s.reject(ctx, "add")
		return nil, &InsufficientStockError{VariantID: v.ID, Requested: qty, Available: v.Stock}
	}

	c, err := s.cart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	line, created, err := s.repo.MergeLine(ctx, c.ID, v.ID, qty)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.reject(ctx, "add")
			return nil, s.mergeRejection(ctx, c.ID, v, qty)
		}
		return nil, errors.Wrap(err, "merge line")
	}

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "add")))
	zctx.From(ctx).Info("Cart line added",
		zap.String("cart_id", c.ID),
		zap.String("line_id", line.ID),
		zap.String("variant_id", v.ID),
		zap.Int("quantity", line.Quantity),
		zap.Bool("created", created),
	)
	return &AddResult{Line: line, Created: created}, nil
}

// UpdateItem overwrites the quantity of a line in the customer's cart.
func (s *Service) UpdateItem(ctx context.Context, customerID, lineID string, qty int) (*Line, error) {
	ctx, span := s.tracer.Start(ctx, "cart.UpdateItem", trace.WithAttributes(
		attribute.String("line_id", lineID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	if customerID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.cart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.Line(ctx, c.ID, lineID)
	if err != nil {
		return nil, err
	}
	v, err := s.variant(ctx, current.VariantID)
	if err != nil {
		return nil, err
	}
	if !v.Available(qty) {
		s.reject(ctx, "update")
		return nil, &InsufficientStockError{VariantID: v.ID, Requested: qty, Available: v.Stock}
	}

	line, err := s.repo.SetQuantity(ctx, c.ID, lineID, qty)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.reject(ctx, "update")
			return nil, s.stockRejection(ctx, v.ID, qty, 0)
		}
		if errors.Is(err, ErrLineNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "set quantity")
	}

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "update")))
	zctx.From(ctx).Info("Cart line updated",
		zap.String("cart_id", c.ID),
		zap.String("line_id", line.ID),
		zap.Int("quantity", line.Quantity),
	)
	return line, nil
}

// RemoveItem deletes a line from the customer's cart. Lines of other carts
// are reported as not found. Stock is not touched.
func (s *Service) RemoveItem(ctx context.Context, customerID, lineID string) error {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem")
	defer span.End()

	c, err := s.cart(ctx, customerID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteLine(ctx, c.ID, lineID); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return err
		}
		return errors.Wrap(err, "delete line")
	}

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "remove")))
	zctx.From(ctx).Info("Cart line removed", zap.String("cart_id", c.ID), zap.String("line_id", lineID))
	return nil
}

// Clear removes every line from the customer's cart. Clearing an empty cart
// succeeds.
func (s *Service) Clear(ctx context.Context, customerID string) error {
	ctx, span := s.tracer.Start(ctx, "cart.Clear")
	defer span.End()

	c, err := s.cart(ctx, customerID)
	if err != nil {
		return err
	}
	n, err := s.repo.Clear(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "clear cart")
	}

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "clear")))
	zctx.From(ctx).Info("Cart cleared", zap.String("cart_id", c.ID), zap.Int("removed", n))
	return nil
}

func (s *Service) variant(ctx context.Context, id string) (*catalog.Variant, error) {
	v, err := s.variants.GetVariant(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrVariantNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get variant")
	}
	if !v.Active {
		return nil, catalog.ErrVariantNotFound
	}
	return v, nil
}

func (s *Service) reject(ctx context.Context, op string) {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// mergeRejection builds the error for an add whose merged quantity exceeds
// stock, reporting what the cart already holds.
func (s *Service) mergeRejection(ctx context.Context, cartID string, v *catalog.Variant, qty int) error {
	inCart := 0
	if lines, err := s.repo.Lines(ctx, cartID); err == nil {
		for _, l := range lines {
			if l.VariantID == v.ID {
				inCart = l.Quantity
				break
			}
		}
	}
	return s.stockRejection(ctx, v.ID, qty, inCart)
}

// stockRejection re-reads stock so the error reports the value the guard
// actually compared against.
func (s *Service) stockRejection(ctx context.Context, variantID string, qty, inCart int) error {
	available := 0
	if v, err := s.variants.GetVariant(ctx, variantID); err == nil {
		available = v.Stock
	}
	zctx.From(ctx).Debug("Stock check rejected",
		zap.String("variant_id", variantID),
		zap.Int("requested", qty),
		zap.Int("in_cart", inCart),
		zap.Int("available", available),
	)
	return &InsufficientStockError{VariantID: variantID, Requested: qty, InCart: inCart, Available: available}
}
